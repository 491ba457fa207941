package statement

import (
	"github.com/coocood/freecache"
	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// TextCache 已编译语句的缓存，key 为模型标识加请求，value 为 msgpack 编码的 Statement
// 只缓存成功的结果
type TextCache struct {
	cache *freecache.Cache
	ttl   int
}

type textCacheKey struct {
	Model   string
	Request *Request
}

func NewTextCacheWithOptions(options *TextCacheOptions) (*TextCache, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	return &TextCache{
		cache: freecache.NewCache(options.Size),
		ttl:   int(options.TTL.Seconds()),
	}, nil
}

func (c *TextCache) key(m *model.TableModel, req *Request) ([]byte, error) {
	return msgpack.Marshal(&textCacheKey{Model: m.Key(), Request: req})
}

func (c *TextCache) Get(m *model.TableModel, req *Request) (*Statement, bool) {
	key, err := c.key(m, req)
	if err != nil {
		return nil, false
	}
	data, err := c.cache.Get(key)
	if err != nil {
		return nil, false
	}
	var st Statement
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *TextCache) Set(m *model.TableModel, req *Request, st *Statement) error {
	key, err := c.key(m, req)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache key")
	}
	data, err := msgpack.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "failed to encode statement")
	}
	if err := c.cache.Set(key, data, c.ttl); err != nil {
		return errors.Wrap(err, "failed to set cache")
	}
	return nil
}

func (c *TextCache) Clear() {
	c.cache.Clear()
}

func (c *TextCache) EntryCount() int64 {
	return c.cache.EntryCount()
}

func (c *TextCache) HitCount() int64 {
	return c.cache.HitCount()
}

func (c *TextCache) MissCount() int64 {
	return c.cache.MissCount()
}
