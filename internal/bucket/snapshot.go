package bucket

import (
	"errors"
	"net/http"
	"time"
)

// ErrNotFound 表示快照不存在。
var ErrNotFound = errors.New("snapshot not found")

// Snapshot 是某次响应的不可变存储副本。写入后不再修改；
// 同一键的后续写入整体覆盖旧快照。
type Snapshot struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone 返回快照的深拷贝，避免调用方修改缓存内容。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{
		Status:   s.Status,
		Header:   make(http.Header, len(s.Header)),
		Body:     append([]byte(nil), s.Body...),
		StoredAt: s.StoredAt,
	}
	for key, values := range s.Header {
		clone.Header[key] = append([]string(nil), values...)
	}
	return clone
}

// Key 由请求标识（方法 + URL）构造存储键。
func Key(method, url string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + url
}
