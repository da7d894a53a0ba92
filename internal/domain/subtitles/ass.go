package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Chunk is one on-screen block of consecutive words.
type Chunk struct {
	Start float64
	End   float64
	Words []types.WordTiming
}

// Style controls how chunks are grouped and drawn.
type Style struct {
	Name      string
	ChunkSize int
	LineBreak bool // join words with \N instead of a space
	Uppercase bool
	Language  string

	PlayResX  int
	PlayResY  int
	Font      string
	FontSize  int
	Primary   string
	Outline   string
	Back      string
	Bold      bool
	Border    int
	Shadow    int
	Alignment int
	MarginV   int
}

func TikTokStyle() Style {
	return Style{
		Name:      "TikTok",
		ChunkSize: 2,
		LineBreak: true,
		Uppercase: true,
		PlayResX:  1080,
		PlayResY:  1920,
		Font:      "Arial",
		FontSize:  96,
		Primary:   "&H0000FFFF",
		Outline:   "&H00000000",
		Back:      "&H80000000",
		Bold:      true,
		Border:    5,
		Shadow:    2,
		Alignment: 5,
		MarginV:   0,
	}
}

func ShortsStyle() Style {
	return Style{
		Name:      "Shorts",
		ChunkSize: 3,
		PlayResX:  1080,
		PlayResY:  1920,
		Font:      "Arial",
		FontSize:  80,
		Primary:   "&H00FFFFFF",
		Outline:   "&H00000000",
		Back:      "&H80000000",
		Bold:      true,
		Border:    4,
		Shadow:    1,
		Alignment: 2,
		MarginV:   250,
	}
}

// StyleByName resolves a profile name from configuration.
func StyleByName(name string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tiktok":
		return TikTokStyle(), nil
	case "shorts":
		return ShortsStyle(), nil
	default:
		return Style{}, faults.InvalidInput("subtitle style", "unknown profile %q", name)
	}
}

// ChunkWords groups words in source order, size words at a time. The trailing
// partial group is kept. Segment boundaries play no part in grouping.
func ChunkWords(words []types.WordTiming, size int) ([]Chunk, error) {
	if size < 2 || size > 3 {
		return nil, faults.InvalidInput("subtitle chunk", "chunk size must be 2 or 3, got %d", size)
	}
	if len(words) == 0 {
		return nil, nil
	}

	out := make([]Chunk, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		j := min(i+size, len(words))
		group := make([]types.WordTiming, j-i)
		copy(group, words[i:j])
		c := Chunk{Start: group[0].Start, End: group[len(group)-1].End, Words: group}
		if c.End < c.Start {
			c.End = c.Start
		}
		out = append(out, c)
	}

	// Chunks may abut but never overlap on screen.
	for k := 0; k+1 < len(out); k++ {
		if next := out[k+1].Start; out[k].End > next {
			out[k].End = max(next, out[k].Start)
		}
	}
	return out, nil
}

// Text renders the chunk's words the way st displays them.
func (c Chunk) Text(st Style) string {
	upper := cases.Upper(languageTag(st.Language))
	parts := make([]string, 0, len(c.Words))
	for _, w := range c.Words {
		s := sanitizeASS(w.Word)
		if s == "" {
			continue
		}
		if st.Uppercase {
			s = upper.String(s)
		}
		parts = append(parts, s)
	}
	sep := " "
	if st.LineBreak {
		sep = "\\N"
	}
	return strings.Join(parts, sep)
}

// EncodeASS writes an Advanced SubStation track. No chunks yields a valid
// track with no events.
func EncodeASS(chunks []Chunk, st Style) string {
	var b strings.Builder
	b.WriteString(assHeader(st))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range chunks {
		text := c.Text(st)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
			assTime(dur(c.Start)), assTime(dur(c.End)), st.Name, text)
	}
	return b.String()
}

func assHeader(st Style) string {
	bold := 0
	if st.Bold {
		bold = -1
	}
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 2
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: %s,%s,%d,%s,&H000000FF,%s,%s,%d,0,0,0,100,100,0,0,1,%d,%d,%d,60,60,%d,1
`,
		st.PlayResX, st.PlayResY,
		st.Name, st.Font, st.FontSize, st.Primary, st.Outline, st.Back, bold,
		st.Border, st.Shadow, st.Alignment, st.MarginV,
	))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func languageTag(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}

// dur rounds to the millisecond so float noise from the transcript does not
// push a timestamp into the previous centisecond.
func dur(sec float64) time.Duration {
	return time.Duration(sec*1000+0.5) * time.Millisecond
}
