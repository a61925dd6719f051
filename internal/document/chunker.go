package document

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ChunkMode 分块模式
type ChunkMode string

const (
	// ModeSemantic 按段落（空行）分块
	ModeSemantic ChunkMode = "semantic"
	// ModeConfigurable 固定窗口大小 + 重叠的滑动窗口分块
	ModeConfigurable ChunkMode = "configurable"
)

const (
	// DefaultChunkSize 默认窗口大小（字符数）
	DefaultChunkSize = 500
	// DefaultChunkOverlap 默认重叠字符数
	DefaultChunkOverlap = 50
)

// lineage 元数据字段名
const (
	MetaParentDocID = "parent_doc_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaChunkMode   = "chunk_mode"
)

// ErrInvalidOverlap 重叠字符数不小于窗口大小时，窗口无法前进
var ErrInvalidOverlap = errors.New("chunk overlap must be smaller than chunk size")

// paragraphBreak 两个及以上连续换行视为段落边界
var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// ChunkOptions 分块配置
// 以值传递，缺省字段在Normalize时回落到默认值
// Overlap为nil表示未设置（取50），显式的0表示不重叠
type ChunkOptions struct {
	Mode      ChunkMode `json:"mode"`              // 分块模式
	ChunkSize int       `json:"chunk_size"`        // 窗口大小（仅configurable模式）
	Overlap   *int      `json:"overlap,omitempty"` // 重叠字符数（仅configurable模式）
}

// OverlapOf 构造显式的重叠字符数
func OverlapOf(n int) *int {
	return &n
}

// DefaultChunkOptions 返回默认分块配置
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Mode:      ModeConfigurable,
		ChunkSize: DefaultChunkSize,
		Overlap:   OverlapOf(DefaultChunkOverlap),
	}
}

// OverlapChars 返回生效的重叠字符数，未设置或为负时取默认值
func (o ChunkOptions) OverlapChars() int {
	if o.Overlap == nil || *o.Overlap < 0 {
		return DefaultChunkOverlap
	}
	return *o.Overlap
}

// Normalize 补齐缺省值
// 未知模式按configurable处理；ChunkSize<=0取500；Overlap未设置取50
// 返回值持有独立的Overlap指针，不与调用方共享
func (o ChunkOptions) Normalize() ChunkOptions {
	if o.Mode != ModeSemantic {
		o.Mode = ModeConfigurable
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	o.Overlap = OverlapOf(o.OverlapChars())
	return o
}

// Validate 校验补齐后的配置
func (o ChunkOptions) Validate() error {
	o = o.Normalize()
	if o.Mode == ModeConfigurable && *o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap=%d chunk_size=%d", ErrInvalidOverlap, *o.Overlap, o.ChunkSize)
	}
	return nil
}

// Chunk 文本块
type Chunk struct {
	Text  string `json:"text"`  // 去除首尾空白后的内容
	Index int    `json:"index"` // 从0开始的连续序号
}

// ChunkedDocument 可直接写入向量库的分块文档
type ChunkedDocument struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ChunkText 将文本切分为有序的文本块
// 空文本或纯空白文本返回空列表
func ChunkText(text string, opts ChunkOptions) ([]Chunk, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	if opts.Mode == ModeSemantic {
		return chunkByParagraph(text), nil
	}
	return chunkByWindow(text, opts.ChunkSize, *opts.Overlap), nil
}

// EstimateChunks 估算ChunkText会生成的块数量，不实际生成文本块
// configurable模式为闭式上界估计，末尾窗口去空白后为空时可能比实际多一个
func EstimateChunks(text string, opts ChunkOptions) (int, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	if opts.Mode == ModeSemantic {
		return len(splitParagraphs(text)), nil
	}

	length := len([]rune(text))
	if length <= opts.ChunkSize {
		return 1, nil
	}
	step := float64(opts.ChunkSize - *opts.Overlap)
	return int(math.Ceil(float64(length-opts.ChunkSize)/step)) + 1, nil
}

// CreateChunkedDocuments 分块并附加溯源元数据
// baseMeta先拷贝，随后写入的lineage字段覆盖同名字段
func CreateChunkedDocuments(baseID, text string, opts ChunkOptions, baseMeta map[string]interface{}) ([]ChunkedDocument, error) {
	opts = opts.Normalize()
	chunks, err := ChunkText(text, opts)
	if err != nil {
		return nil, err
	}

	total := len(chunks)
	docs := make([]ChunkedDocument, 0, total)
	for _, chunk := range chunks {
		ordinal := chunk.Index + 1

		meta := make(map[string]interface{}, len(baseMeta)+4)
		for k, v := range baseMeta {
			meta[k] = v
		}
		meta[MetaParentDocID] = baseID
		meta[MetaChunkIndex] = ordinal
		meta[MetaTotalChunks] = total
		meta[MetaChunkMode] = string(opts.Mode)

		docs = append(docs, ChunkedDocument{
			ID:       ChunkID(baseID, ordinal),
			Text:     chunk.Text,
			Metadata: meta,
		})
	}

	return docs, nil
}

// ChunkID 生成分块文档ID，ordinal从1开始
func ChunkID(baseID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", baseID, ordinal)
}

// chunkByParagraph 按段落分块
func chunkByParagraph(text string) []Chunk {
	paragraphs := splitParagraphs(text)
	chunks := make([]Chunk, 0, len(paragraphs))
	for i, p := range paragraphs {
		chunks = append(chunks, Chunk{Text: p, Index: i})
	}
	return chunks
}

// splitParagraphs 按空行切分并过滤空段落
// 没有段落边界时整段文本作为一个段落
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	if len(result) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// chunkByWindow 滑动窗口分块，长度按字符（rune）计算
// 调用方保证 overlap < size，窗口每轮前进 size-overlap
func chunkByWindow(text string, size, overlap int) []Chunk {
	runes := []rune(text)
	length := len(runes)

	var chunks []Chunk
	index := 0
	for start := 0; start < length; start = start + size - overlap {
		end := start + size
		if end > length {
			end = length
		}

		// 去空白后为空的窗口不占用序号
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Index: index})
			index++
		}

		// 窗口已覆盖到文本末尾
		if end == length {
			break
		}
	}

	if chunks == nil {
		return []Chunk{}
	}
	return chunks
}
