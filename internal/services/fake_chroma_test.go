package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
)

type fakeCollection struct {
	col   chroma.Collection
	ids   []string
	docs  map[string]string
	metas map[string]map[string]interface{}
	vecs  map[string][]float32
}

// fakeChroma 内存版远程服务，只实现测试需要的语义
type fakeChroma struct {
	mu        sync.Mutex
	cols      map[string]*fakeCollection
	nextID    int
	addSizes  []int
	getCalls  int
	lastQuery chroma.QueryRequest
	listCalls int32
	failList  error
	upserts   int
	// failWriteAt 第n次写入（从1开始）返回failWrite
	failWriteAt int
	failWrite   error
}

var _ chroma.Client = (*fakeChroma)(nil)

func newFakeChroma() *fakeChroma {
	return &fakeChroma{cols: make(map[string]*fakeCollection)}
}

// seed 创建集合并写入n条文档
func (f *fakeChroma) seed(name string, n int, meta func(i int) map[string]interface{}) {
	col, _ := f.CreateCollection(context.Background(), name, nil, true)
	req := chroma.AddRequest{}
	for i := 0; i < n; i++ {
		req.IDs = append(req.IDs, fmt.Sprintf("%s-%04d", name, i))
		req.Documents = append(req.Documents, fmt.Sprintf("document %d", i))
		var m map[string]interface{}
		if meta != nil {
			m = meta(i)
		}
		req.Metadatas = append(req.Metadatas, m)
	}
	if n > 0 {
		f.Add(context.Background(), col.ID, req)
		f.addSizes = nil
	}
}

func (f *fakeChroma) byID(id string) (*fakeCollection, error) {
	for _, c := range f.cols {
		if c.col.ID == id {
			return c, nil
		}
	}
	return nil, &chroma.APIError{StatusCode: 404, Message: "Collection " + id + " does not exist."}
}

func (f *fakeChroma) Heartbeat(ctx context.Context) (int64, error) { return 1700000000, nil }

func (f *fakeChroma) Version(ctx context.Context) (string, error) { return "0.5.0", nil }

func (f *fakeChroma) ListCollections(ctx context.Context) ([]chroma.Collection, error) {
	atomic.AddInt32(&f.listCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]chroma.Collection, 0, len(f.cols))
	for _, c := range f.cols {
		out = append(out, c.col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeChroma) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}, getOrCreate bool) (*chroma.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cols[name]; ok {
		if getOrCreate {
			col := c.col
			return &col, nil
		}
		return nil, &chroma.APIError{StatusCode: 409, Message: "Collection " + name + " already exists"}
	}
	f.nextID++
	c := &fakeCollection{
		col:   chroma.Collection{ID: fmt.Sprintf("id-%d", f.nextID), Name: name, Metadata: metadata},
		docs:  map[string]string{},
		metas: map[string]map[string]interface{}{},
		vecs:  map[string][]float32{},
	}
	f.cols[name] = c
	col := c.col
	return &col, nil
}

func (f *fakeChroma) GetCollection(ctx context.Context, name string) (*chroma.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chroma.ErrCollectionNotFound, name)
	}
	col := c.col
	return &col, nil
}

func (f *fakeChroma) DeleteCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cols[name]; !ok {
		return fmt.Errorf("%w: %s", chroma.ErrCollectionNotFound, name)
	}
	delete(f.cols, name)
	return nil
}

func (f *fakeChroma) Count(ctx context.Context, collectionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.byID(collectionID)
	if err != nil {
		return 0, err
	}
	return len(c.ids), nil
}

func (f *fakeChroma) Add(ctx context.Context, collectionID string, req chroma.AddRequest) error {
	return f.write(collectionID, req, true)
}

func (f *fakeChroma) Upsert(ctx context.Context, collectionID string, req chroma.AddRequest) error {
	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()
	return f.write(collectionID, req, true)
}

func (f *fakeChroma) Update(ctx context.Context, collectionID string, req chroma.AddRequest) error {
	return f.write(collectionID, req, false)
}

func (f *fakeChroma) write(collectionID string, req chroma.AddRequest, insert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.byID(collectionID)
	if err != nil {
		return err
	}
	f.addSizes = append(f.addSizes, req.Len())
	if f.failWriteAt > 0 && len(f.addSizes) == f.failWriteAt {
		return f.failWrite
	}
	for i, id := range req.IDs {
		if _, exists := c.docs[id]; !exists {
			if !insert {
				continue
			}
			c.ids = append(c.ids, id)
			c.docs[id] = ""
		}
		if i < len(req.Documents) {
			c.docs[id] = req.Documents[i]
		}
		if i < len(req.Metadatas) && req.Metadatas[i] != nil {
			c.metas[id] = req.Metadatas[i]
		}
		if i < len(req.Embeddings) {
			c.vecs[id] = req.Embeddings[i]
		}
	}
	return nil
}

func (f *fakeChroma) Get(ctx context.Context, collectionID string, req chroma.GetRequest) (*chroma.GetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	c, err := f.byID(collectionID)
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, id := range c.ids {
		if len(req.IDs) > 0 && !contains(req.IDs, id) {
			continue
		}
		if !matchWhere(c.metas[id], req.Where) {
			continue
		}
		matched = append(matched, id)
	}
	if req.Offset < len(matched) {
		matched = matched[req.Offset:]
	} else {
		matched = nil
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}

	result := &chroma.GetResult{IDs: []string{}}
	for _, id := range matched {
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, c.docs[id])
		result.Metadatas = append(result.Metadatas, c.metas[id])
	}
	return result, nil
}

func (f *fakeChroma) Delete(ctx context.Context, collectionID string, req chroma.DeleteRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.byID(collectionID)
	if err != nil {
		return nil, err
	}
	var kept []string
	for _, id := range c.ids {
		if contains(req.IDs, id) {
			delete(c.docs, id)
			delete(c.metas, id)
			continue
		}
		kept = append(kept, id)
	}
	c.ids = kept
	// 模拟旧版本不返回被删除的ID
	return nil, nil
}

func (f *fakeChroma) Query(ctx context.Context, collectionID string, req chroma.QueryRequest) (*chroma.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = req
	c, err := f.byID(collectionID)
	if err != nil {
		return nil, err
	}

	queries := len(req.QueryTexts)
	if queries == 0 {
		queries = len(req.QueryEmbeddings)
	}
	result := &chroma.QueryResult{}
	for q := 0; q < queries; q++ {
		var ids, docs []string
		var metas []map[string]interface{}
		var dists []float64
		for i, id := range c.ids {
			if i >= req.NResults {
				break
			}
			ids = append(ids, id)
			docs = append(docs, c.docs[id])
			metas = append(metas, c.metas[id])
			dists = append(dists, float64(q)+float64(i+1)/10)
		}
		result.IDs = append(result.IDs, ids)
		result.Documents = append(result.Documents, docs)
		result.Metadatas = append(result.Metadatas, metas)
		result.Distances = append(result.Distances, dists)
	}
	return result, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// matchWhere 只支持等值条件
func matchWhere(meta, where map[string]interface{}) bool {
	for k, v := range where {
		if fmt.Sprint(meta[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// countingInvalidator 记录失效次数
type countingInvalidator struct {
	n int32
}

func (c *countingInvalidator) Invalidate() error {
	atomic.AddInt32(&c.n, 1)
	return nil
}

func (c *countingInvalidator) count() int {
	return int(atomic.LoadInt32(&c.n))
}

// fakeEmbedder 返回文本长度作为一维向量
type fakeEmbedder struct {
	calls int32
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	return []float32{float32(len(text))}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (e *fakeEmbedder) Name() string { return "fake" }
