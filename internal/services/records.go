package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// textKeys JSON记录中依次尝试的正文字段
var textKeys = []string{"text", "document", "content"}

// ParseJSONRecords 解析JSON记录
// 支持对象数组或 {"records": [...]}；id与正文字段之外的键并入元数据
func ParseJSONRecords(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidInput)
	}

	var items []map[string]interface{}
	if data[0] == '{' {
		var wrapper struct {
			Records []map[string]interface{} `json:"records"`
		}
		if err := decodeJSON(data, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		items = wrapper.Records
	} else if err := decodeJSON(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := recordFromMap(item)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidInput, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeJSON 数字保留为json.Number，避免整数变成浮点数
func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func recordFromMap(item map[string]interface{}) (Record, error) {
	rec := Record{Metadata: map[string]interface{}{}}

	if id, ok := item["id"]; ok && id != nil {
		rec.ID = strings.TrimSpace(fmt.Sprint(id))
	}

	textKey := ""
	for _, k := range textKeys {
		if v, ok := item[k].(string); ok && strings.TrimSpace(v) != "" {
			rec.Text, textKey = v, k
			break
		}
	}
	if textKey == "" {
		return Record{}, fmt.Errorf("missing text (one of %s)", strings.Join(textKeys, ", "))
	}

	if meta, ok := item["metadata"].(map[string]interface{}); ok {
		for k, v := range meta {
			rec.Metadata[k] = v
		}
	}
	for k, v := range item {
		if k == "id" || k == "metadata" || k == textKey || v == nil {
			continue
		}
		switch v.(type) {
		case string, bool, json.Number, float64:
			rec.Metadata[k] = v
		default:
			// 远程服务的元数据只支持标量
			b, _ := json.Marshal(v)
			rec.Metadata[k] = string(b)
		}
	}
	rec.Metadata = nonNilMeta(rec.Metadata)
	return rec, nil
}

// CSVOptions CSV列配置
type CSVOptions struct {
	IDColumn   string // 默认 id
	TextColumn string // 默认依次尝试 text、document、content
}

// ParseCSVRecords 解析带表头的CSV
// metadata列若为JSON对象则展开，其余列作为字符串元数据
func ParseCSVRecords(r io.Reader, opts CSVOptions) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty csv", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	idCol := indexOf(header, defaultString(opts.IDColumn, "id"))
	textCol := -1
	if opts.TextColumn != "" {
		textCol = indexOf(header, opts.TextColumn)
	} else {
		for _, k := range textKeys {
			if textCol = indexOf(header, k); textCol >= 0 {
				break
			}
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("%w: csv has no text column", ErrInvalidInput)
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if textCol >= len(row) || strings.TrimSpace(row[textCol]) == "" {
			return nil, fmt.Errorf("%w: line %d has empty text", ErrInvalidInput, line)
		}

		rec := Record{Text: row[textCol], Metadata: map[string]interface{}{}}
		for i, value := range row {
			if i >= len(header) || i == textCol || value == "" {
				continue
			}
			switch {
			case i == idCol:
				rec.ID = strings.TrimSpace(value)
			case header[i] == "metadata":
				var meta map[string]interface{}
				if decodeJSON([]byte(value), &meta) == nil {
					for k, v := range meta {
						rec.Metadata[k] = v
					}
					continue
				}
				rec.Metadata[header[i]] = value
			default:
				rec.Metadata[header[i]] = value
			}
		}
		rec.Metadata = nonNilMeta(rec.Metadata)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", ErrInvalidInput)
	}
	return records, nil
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if strings.EqualFold(v, name) {
			return i
		}
	}
	return -1
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
