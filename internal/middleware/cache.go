package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/krushi/krushi-api/internal/config"
    "github.com/krushi/krushi-api/internal/logging"
)

// bodyRecorder tees the response so a 200 can be stored after the handler
// returns. At most limit bytes are kept; limit <= 0 keeps everything.
type bodyRecorder struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int64
    truncated bool
}

func (r *bodyRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if r.limit > 0 && int64(r.buf.Len()+len(b)) > r.limit {
        r.truncated = true
    } else if !r.truncated {
        r.buf.Write(b)
    }
    return r.ResponseWriter.Write(b)
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var tail string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        tail = "route:" + c.Path()
    case "method_route":
        tail = "method:" + r.Method + ":route:" + c.Path()
    case "method_route_query":
        tail = "method:" + r.Method + ":route:" + c.Path() + ":q:" + r.URL.RawQuery
    default:
        tail = "route:" + c.Path() + ":q:" + r.URL.RawQuery
    }
    sum := sha1.Sum([]byte(tail))
    return routeKeyPrefix(cfg, c.Path()) + fmt.Sprintf("%x", sum[:])
}

// routeKeyPrefix groups every cached variant of a route so a write to the
// route can drop them together.
func routeKeyPrefix(cfg config.CacheConfig, route string) string {
    return cfg.Prefix + ":" + route + ":"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// purgeRoute deletes all cached responses of route.
func purgeRoute(ctx context.Context, rdb *redis.Client, cfg config.CacheConfig, route string) error {
    iter := rdb.Scan(ctx, 0, globEscaper.Replace(routeKeyPrefix(cfg, route))+"*", 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        return err
    }
    if len(keys) == 0 {
        return nil
    }
    return rdb.Del(ctx, keys...).Err()
}

func isWrite(method string) bool {
    switch method {
    case http.MethodGet, http.MethodHead, http.MethodOptions:
        return false
    }
    return true
}

// cached layout: [4 bytes status][4 bytes header length][header JSON][body]
func encodeCached(status int, header http.Header, body []byte) ([]byte, error) {
    hdr, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8, 8+len(hdr)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
    out = append(out, hdr...)
    return append(out, body...), nil
}

func decodeCached(bs []byte) (int, http.Header, []byte, bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status := int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    hdr := make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, hdr, bs[8+hlen:], true
}

// NewRedisCache caches 200 responses of the configured methods in Redis,
// headers included. Only user-independent routes should be wrapped. A
// successful write (POST, PUT, PATCH, DELETE) through the middleware drops
// every cached response of the same route. The middleware is pass-through
// when disabled or when rdb is nil.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log logging.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Minute
    }
    log = log.With("component", "cache")

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            method := strings.ToUpper(c.Request().Method)
            if !cfg.Methods[method] {
                if err := next(c); err != nil || !isWrite(method) {
                    return err
                }
                if st := c.Response().Status; st >= 200 && st < 300 {
                    ctx := c.Request().Context()
                    if err := purgeRoute(context.WithoutCancel(ctx), rdb, cfg, c.Path()); err != nil {
                        log.Warn(ctx, "cache purge failed", "route", c.Path(), "error", err)
                    }
                }
                return nil
            }
            ctx := c.Request().Context()
            key := cacheKey(cfg, c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodeCached(bs); ok {
                    for k, vals := range hdr {
                        if strings.EqualFold(k, echo.HeaderContentLength) {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(status, hdr.Get(echo.HeaderContentType), body)
                }
            } else if err != redis.Nil {
                log.Warn(ctx, "cache read failed", "key", key, "error", err)
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.truncated {
                return nil
            }

            hdr := c.Response().Header().Clone()
            hdr.Del("X-Cache")
            payload, err := encodeCached(rec.status, hdr, rec.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
                log.Warn(ctx, "cache write failed", "key", key, "error", err)
            }
            return nil
        }
    }
}
