package subtitles

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
)

func sevenWords() []types.WordTiming {
	return []types.WordTiming{
		{Word: "le", Start: 0.00, End: 0.20},
		{Word: "ciel", Start: 0.20, End: 0.55},
		{Word: "est", Start: 0.60, End: 0.80},
		{Word: "bleu.", Start: 0.80, End: 1.20},
		{Word: "Il", Start: 1.50, End: 1.60},
		{Word: "fait", Start: 1.60, End: 1.90},
		{Word: "beau", Start: 1.90, End: 2.40},
	}
}

func TestChunk_SevenWordsByTwo(t *testing.T) {
	words := sevenWords()
	chunks, err := ChunkWords(words, 2)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	sizes := []int{len(chunks[0].Words), len(chunks[1].Words), len(chunks[2].Words), len(chunks[3].Words)}
	if !reflect.DeepEqual(sizes, []int{2, 2, 2, 1}) {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
	if chunks[0].Start != 0 || chunks[0].End != 0.55 {
		t.Fatalf("chunk 0 bounds: %v-%v", chunks[0].Start, chunks[0].End)
	}
	if chunks[3].Start != 1.90 || chunks[3].End != 2.40 {
		t.Fatalf("last chunk bounds: %v-%v", chunks[3].Start, chunks[3].End)
	}
}

func TestChunk_PartitionsWithoutOverlap(t *testing.T) {
	inputs := [][]types.WordTiming{
		sevenWords(),
		sevenWords()[:1],
		sevenWords()[:3],
		{
			{Word: "a", Start: 0, End: 0.9},
			{Word: "b", Start: 0.5, End: 1.0},
			{Word: "c", Start: 0.8, End: 1.2},
			{Word: "d", Start: 1.1, End: 1.0},
		},
	}
	for _, words := range inputs {
		for _, size := range []int{2, 3} {
			chunks, err := ChunkWords(words, size)
			if err != nil {
				t.Fatalf("chunk: %v", err)
			}
			var got []types.WordTiming
			for i, c := range chunks {
				got = append(got, c.Words...)
				if c.End < c.Start {
					t.Fatalf("chunk %d ends before it starts: %+v", i, c)
				}
				if i > 0 && chunks[i-1].End > c.Start {
					t.Fatalf("chunk %d overlaps previous: %v > %v", i, chunks[i-1].End, c.Start)
				}
			}
			if !reflect.DeepEqual(got, words) {
				t.Fatalf("size %d: words not partitioned:\n got %v\nwant %v", size, got, words)
			}
		}
	}
}

func TestChunk_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 1, 4} {
		if _, err := ChunkWords(sevenWords(), size); !errors.Is(err, faults.ErrInvalidInput) {
			t.Fatalf("size %d: expected InvalidInput, got %v", size, err)
		}
	}
}

func TestEncodeASS_EmptyTrack(t *testing.T) {
	chunks, err := ChunkWords(nil, 2)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	ass := EncodeASS(chunks, TikTokStyle())
	if !strings.Contains(ass, "[Events]") {
		t.Fatalf("expected events section:\n%s", ass)
	}
	if strings.Contains(ass, "Dialogue:") {
		t.Fatalf("expected no dialogue lines:\n%s", ass)
	}
}

func TestEncodeASS_TikTokUppercasesWithLineBreak(t *testing.T) {
	st := TikTokStyle()
	st.Language = "fr"
	chunks, err := ChunkWords(sevenWords(), st.ChunkSize)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	ass := EncodeASS(chunks, st)
	want := "Dialogue: 0,0:00:00.00,0:00:00.55,TikTok,,0,0,0,,LE\\NCIEL\n"
	if !strings.Contains(ass, want) {
		t.Fatalf("missing %q in:\n%s", want, ass)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:01.90,0:00:02.40,TikTok,,0,0,0,,BEAU\n") {
		t.Fatalf("missing trailing chunk in:\n%s", ass)
	}
}

func TestEncodeASS_ShortsJoinsWithSpaces(t *testing.T) {
	st := ShortsStyle()
	chunks, err := ChunkWords(sevenWords(), st.ChunkSize)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	ass := EncodeASS(chunks, st)
	if !strings.Contains(ass, ",Shorts,,0,0,0,,le ciel est\n") {
		t.Fatalf("unexpected shorts text:\n%s", ass)
	}
	if got := strings.Count(ass, "Dialogue:"); got != 3 {
		t.Fatalf("expected 3 dialogue lines, got %d", got)
	}
}

func TestEncodeASS_SanitizesOverrideBraces(t *testing.T) {
	chunks := []Chunk{{Start: 0, End: 1, Words: []types.WordTiming{{Word: "{\\b1}hi", Start: 0, End: 1}}}}
	ass := EncodeASS(chunks, ShortsStyle())
	if strings.Contains(ass, "{\\b1}") {
		t.Fatalf("override tag leaked into track:\n%s", ass)
	}
}

func TestStyleByName(t *testing.T) {
	if st, err := StyleByName("shorts"); err != nil || st.ChunkSize != 3 {
		t.Fatalf("shorts: %+v %v", st, err)
	}
	if st, err := StyleByName(""); err != nil || st.ChunkSize != 2 {
		t.Fatalf("default: %+v %v", st, err)
	}
	if _, err := StyleByName("karaoke"); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
	if got := assTime(time.Hour + 2*time.Second); got != "1:00:02.00" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}
