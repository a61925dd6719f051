package chroma

// Include 查询结果中需要返回的字段
type Include string

const (
	IncludeDocuments  Include = "documents"
	IncludeMetadatas  Include = "metadatas"
	IncludeDistances  Include = "distances"
	IncludeEmbeddings Include = "embeddings"
)

// Collection 集合
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Tenant   string                 `json:"tenant,omitempty"`
	Database string                 `json:"database,omitempty"`
}

// CreateCollectionRequest 创建集合请求
type CreateCollectionRequest struct {
	Name        string                 `json:"name"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	GetOrCreate bool                   `json:"get_or_create"`
}

// AddRequest add/upsert/update 请求体
// Embeddings为空时由服务端根据Documents计算
type AddRequest struct {
	IDs        []string                 `json:"ids"`
	Embeddings [][]float32              `json:"embeddings,omitempty"`
	Metadatas  []map[string]interface{} `json:"metadatas,omitempty"`
	Documents  []string                 `json:"documents,omitempty"`
}

// Len 记录数量
func (r AddRequest) Len() int {
	return len(r.IDs)
}

// GetRequest 按ID或条件获取记录
type GetRequest struct {
	IDs           []string               `json:"ids,omitempty"`
	Where         map[string]interface{} `json:"where,omitempty"`
	WhereDocument map[string]interface{} `json:"where_document,omitempty"`
	Limit         int                    `json:"limit,omitempty"`
	Offset        int                    `json:"offset,omitempty"`
	Include       []Include              `json:"include,omitempty"`
}

// GetResult 获取结果，各切片按下标对齐
type GetResult struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings"`
}

// DeleteRequest 删除请求，IDs与Where至少提供一个
type DeleteRequest struct {
	IDs           []string               `json:"ids,omitempty"`
	Where         map[string]interface{} `json:"where,omitempty"`
	WhereDocument map[string]interface{} `json:"where_document,omitempty"`
}

// QueryRequest 相似度查询
// QueryEmbeddings与QueryTexts二选一
type QueryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings,omitempty"`
	QueryTexts      []string               `json:"query_texts,omitempty"`
	NResults        int                    `json:"n_results"`
	Where           map[string]interface{} `json:"where,omitempty"`
	WhereDocument   map[string]interface{} `json:"where_document,omitempty"`
	Include         []Include              `json:"include,omitempty"`
}

// QueryResult 查询结果，外层下标对应查询条目
type QueryResult struct {
	IDs        [][]string                 `json:"ids"`
	Documents  [][]string                 `json:"documents"`
	Metadatas  [][]map[string]interface{} `json:"metadatas"`
	Distances  [][]float64                `json:"distances"`
	Embeddings [][][]float32              `json:"embeddings"`
}
