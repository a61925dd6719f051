package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunkTextEmpty 测试空输入
func TestChunkTextEmpty(t *testing.T) {
	for _, mode := range []ChunkMode{ModeConfigurable, ModeSemantic} {
		chunks, err := ChunkText("", ChunkOptions{Mode: mode})
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.NotNil(t, chunks)

		chunks, err = ChunkText("  \n\t \n\n  ", ChunkOptions{Mode: mode})
		require.NoError(t, err)
		assert.Empty(t, chunks, "只包含空白的输入应返回空列表")
	}
}

// TestChunkTextConfigurable 测试滑动窗口分块
func TestChunkTextConfigurable(t *testing.T) {
	text := "Hello world. This is a test sentence that is definitely longer than ten characters."
	opts := ChunkOptions{Mode: ModeConfigurable, ChunkSize: 10, Overlap: OverlapOf(2)}

	chunks, err := ChunkText(text, opts)
	require.NoError(t, err)

	expected := []string{
		"Hello worl", "rld. This", "s is a tes", "est senten", "ence that",
		"t is defin", "initely lo", "longer tha", "han ten ch", "characters", "rs.",
	}
	require.Len(t, chunks, len(expected))

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "序号应从0开始连续")
		assert.Equal(t, expected[i], chunk.Text)
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 10)
	}

	t.Run("window starts advance by size minus overlap", func(t *testing.T) {
		runes := []rune(text)
		for i := 0; i+1 < len(chunks); i++ {
			start := i * 8
			window := string(runes[start:min(start+10, len(runes))])
			next := string(runes[start+8 : min(start+18, len(runes))])
			tail := string([]rune(window)[len([]rune(window))-2:])
			assert.True(t, strings.HasPrefix(next, tail), "窗口 %d 的末尾重叠部分应是下一窗口的前缀", i)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		long := strings.Repeat("a", 1200)
		chunks, err := ChunkText(long, ChunkOptions{})
		require.NoError(t, err)
		// 窗口起点 0, 450, 900
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0].Text, 500)
		assert.Len(t, chunks[1].Text, 500)
		assert.Len(t, chunks[2].Text, 300)

		// 只设置窗口大小时重叠仍取默认值
		chunks, err = ChunkText(long, ChunkOptions{ChunkSize: 500})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[2].Text, 300)

		n, err := EstimateChunks(long, ChunkOptions{ChunkSize: 500})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("normalize fills overlap without sharing the pointer", func(t *testing.T) {
		opts := ChunkOptions{}.Normalize()
		require.NotNil(t, opts.Overlap)
		assert.Equal(t, DefaultChunkOverlap, *opts.Overlap)
		assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
		assert.Equal(t, ModeConfigurable, opts.Mode)

		explicit := ChunkOptions{Overlap: OverlapOf(0)}
		normalized := explicit.Normalize()
		assert.Equal(t, 0, *normalized.Overlap)
		*normalized.Overlap = 7
		assert.Equal(t, 0, *explicit.Overlap)
	})

	t.Run("zero overlap is honored", func(t *testing.T) {
		chunks, err := ChunkText("abcdefghij", ChunkOptions{ChunkSize: 5, Overlap: OverlapOf(0)})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "abcde", chunks[0].Text)
		assert.Equal(t, "fghij", chunks[1].Text)
	})

	t.Run("unknown mode falls back to configurable", func(t *testing.T) {
		chunks, err := ChunkText("abcdefghij", ChunkOptions{Mode: "fancy", ChunkSize: 4, Overlap: OverlapOf(1)})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "abcd", chunks[0].Text)
		assert.Equal(t, "defg", chunks[1].Text)
		assert.Equal(t, "ghij", chunks[2].Text)
	})

	t.Run("whitespace windows do not consume an index", func(t *testing.T) {
		text := "abc" + strings.Repeat(" ", 9) + "def"
		chunks, err := ChunkText(text, ChunkOptions{ChunkSize: 4, Overlap: OverlapOf(0)})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, Chunk{Text: "abc", Index: 0}, chunks[0])
		assert.Equal(t, Chunk{Text: "def", Index: 1}, chunks[1])
	})

	t.Run("multibyte characters are counted as characters", func(t *testing.T) {
		chunks, err := ChunkText("这是一个测试文档内容", ChunkOptions{ChunkSize: 4, Overlap: OverlapOf(1)})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "这是一个", chunks[0].Text)
		assert.Equal(t, "个测试文", chunks[1].Text)
		assert.Equal(t, "文档内容", chunks[2].Text)
	})
}

// TestChunkTextInvalidOverlap 测试重叠不小于窗口时直接报错而不是死循环
func TestChunkTextInvalidOverlap(t *testing.T) {
	_, err := ChunkText("some text", ChunkOptions{Mode: ModeConfigurable, ChunkSize: 10, Overlap: OverlapOf(10)})
	assert.True(t, errors.Is(err, ErrInvalidOverlap))

	_, err = ChunkText("some text", ChunkOptions{ChunkSize: 10, Overlap: OverlapOf(25)})
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = EstimateChunks("some text", ChunkOptions{ChunkSize: 5, Overlap: OverlapOf(5)})
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	// 默认窗口为500时，overlap=600同样非法
	_, err = ChunkText("some text", ChunkOptions{Overlap: OverlapOf(600)})
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	// semantic模式不使用窗口参数
	chunks, err := ChunkText("some text", ChunkOptions{Mode: ModeSemantic, ChunkSize: 10, Overlap: OverlapOf(10)})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

// TestChunkTextSemantic 测试按段落分块
func TestChunkTextSemantic(t *testing.T) {
	t.Run("paragraphs", func(t *testing.T) {
		chunks, err := ChunkText("Para one.\n\nPara two.\n\nPara three.", ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)
		assert.Equal(t, []Chunk{
			{Text: "Para one.", Index: 0},
			{Text: "Para two.", Index: 1},
			{Text: "Para three.", Index: 2},
		}, chunks)
	})

	t.Run("runs of blank lines and CRLF", func(t *testing.T) {
		text := "  first  \r\n\r\n\r\n\n second\n\n\n\n\nthird\nstill third  "
		chunks, err := ChunkText(text, ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "first", chunks[0].Text)
		assert.Equal(t, "second", chunks[1].Text)
		assert.Equal(t, "third\nstill third", chunks[2].Text)
	})

	t.Run("no paragraph break", func(t *testing.T) {
		chunks, err := ChunkText("  single line\nwith soft break  ", ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)
		assert.Equal(t, []Chunk{{Text: "single line\nwith soft break", Index: 0}}, chunks)
	})

	t.Run("paragraph count property", func(t *testing.T) {
		text := "a\n\n\n\nb\n\n   \n\nc\n\n"
		chunks, err := ChunkText(text, ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)

		var expected int
		for _, p := range paragraphBreak.Split(text, -1) {
			if strings.TrimSpace(p) != "" {
				expected++
			}
		}
		assert.Equal(t, expected, len(chunks))
	})
}

// TestChunkTextDeterministic 测试相同输入得到相同输出
func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	for _, opts := range []ChunkOptions{
		{Mode: ModeConfigurable, ChunkSize: 64, Overlap: OverlapOf(16)},
		{Mode: ModeSemantic},
	} {
		first, err := ChunkText(text, opts)
		require.NoError(t, err)
		second, err := ChunkText(text, opts)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

// TestChunkTextTerminates 测试各种合法参数组合都能终止且序号连续
func TestChunkTextTerminates(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	for size := 1; size <= 40; size += 3 {
		for overlap := 0; overlap < size; overlap += 2 {
			chunks, err := ChunkText(text, ChunkOptions{ChunkSize: size, Overlap: OverlapOf(overlap)})
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
			}
		}
	}
}

// TestEstimateChunks 测试块数量估算
func TestEstimateChunks(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		n, err := EstimateChunks("   ", ChunkOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("short text", func(t *testing.T) {
		n, err := EstimateChunks("short", ChunkOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("closed form", func(t *testing.T) {
		text := strings.Repeat("x", 1000)
		n, err := EstimateChunks(text, ChunkOptions{Mode: ModeConfigurable, ChunkSize: 500, Overlap: OverlapOf(50)})
		require.NoError(t, err)
		// ceil((1000-500)/450)+1
		assert.Equal(t, 3, n)

		chunks, err := ChunkText(text, ChunkOptions{Mode: ModeConfigurable, ChunkSize: 500, Overlap: OverlapOf(50)})
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("matches scenario text", func(t *testing.T) {
		text := "Hello world. This is a test sentence that is definitely longer than ten characters."
		n, err := EstimateChunks(text, ChunkOptions{ChunkSize: 10, Overlap: OverlapOf(2)})
		require.NoError(t, err)
		assert.Equal(t, 11, n)
	})

	t.Run("upper bound when trailing window is blank", func(t *testing.T) {
		text := "abcdefgh" + strings.Repeat(" ", 7)
		opts := ChunkOptions{ChunkSize: 10, Overlap: OverlapOf(2)}

		n, err := EstimateChunks(text, opts)
		require.NoError(t, err)
		chunks, err := ChunkText(text, opts)
		require.NoError(t, err)

		assert.Equal(t, 2, n)
		assert.Len(t, chunks, 1)
	})

	t.Run("semantic", func(t *testing.T) {
		n, err := EstimateChunks("one\n\ntwo\n\n\nthree", ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = EstimateChunks("no breaks here", ChunkOptions{Mode: ModeSemantic})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

// TestCreateChunkedDocuments 测试分块文档及溯源元数据
func TestCreateChunkedDocuments(t *testing.T) {
	t.Run("semantic lineage", func(t *testing.T) {
		docs, err := CreateChunkedDocuments("doc1", "Para one.\n\nPara two.",
			ChunkOptions{Mode: ModeSemantic}, map[string]interface{}{"source": "test"})
		require.NoError(t, err)
		require.Len(t, docs, 2)

		assert.Equal(t, "doc1_chunk_1", docs[0].ID)
		assert.Equal(t, "doc1_chunk_2", docs[1].ID)
		assert.Equal(t, "Para one.", docs[0].Text)
		assert.Equal(t, "Para two.", docs[1].Text)

		for i, doc := range docs {
			assert.Equal(t, "test", doc.Metadata["source"])
			assert.Equal(t, "doc1", doc.Metadata[MetaParentDocID])
			assert.Equal(t, i+1, doc.Metadata[MetaChunkIndex])
			assert.Equal(t, 2, doc.Metadata[MetaTotalChunks])
			assert.Equal(t, "semantic", doc.Metadata[MetaChunkMode])
		}
	})

	t.Run("lineage fields win over base metadata", func(t *testing.T) {
		base := map[string]interface{}{
			MetaParentDocID: "spoofed",
			MetaChunkIndex:  99,
			MetaChunkMode:   "other",
			"author":        "alice",
		}
		docs, err := CreateChunkedDocuments("base", "abcdefghij", ChunkOptions{ChunkSize: 6, Overlap: OverlapOf(1)}, base)
		require.NoError(t, err)
		require.Len(t, docs, 2)

		for i, doc := range docs {
			assert.Equal(t, "base", doc.Metadata[MetaParentDocID])
			assert.Equal(t, i+1, doc.Metadata[MetaChunkIndex])
			assert.Equal(t, "configurable", doc.Metadata[MetaChunkMode])
			assert.Equal(t, "alice", doc.Metadata["author"])
		}
		// 不修改调用方的元数据
		assert.Equal(t, "spoofed", base[MetaParentDocID])
	})

	t.Run("length matches ChunkText", func(t *testing.T) {
		text := strings.Repeat("word ", 300)
		opts := ChunkOptions{ChunkSize: 120, Overlap: OverlapOf(20)}

		chunks, err := ChunkText(text, opts)
		require.NoError(t, err)
		docs, err := CreateChunkedDocuments("x", text, opts, nil)
		require.NoError(t, err)

		require.Equal(t, len(chunks), len(docs))
		for i, doc := range docs {
			assert.Equal(t, chunks[i].Text, doc.Text)
			assert.Equal(t, len(chunks), doc.Metadata[MetaTotalChunks])
		}
	})

	t.Run("empty input", func(t *testing.T) {
		docs, err := CreateChunkedDocuments("x", " \n ", ChunkOptions{}, map[string]interface{}{"a": 1})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("invalid overlap", func(t *testing.T) {
		_, err := CreateChunkedDocuments("x", "text", ChunkOptions{ChunkSize: 3, Overlap: OverlapOf(3)}, nil)
		assert.ErrorIs(t, err, ErrInvalidOverlap)
	})
}
