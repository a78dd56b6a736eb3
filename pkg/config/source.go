package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source yields a YAML document of setting overrides, keyed by variable name:
//
//	MAX_REQUESTS_HOUR: 50
//	MAINTENANCE_MODE: true
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// SourceResolver turns a DYNAMIC_CONFIG_SOURCE location into a Source.
type SourceResolver func(ctx context.Context, location string) (Source, error)

// FileSource reads overrides from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Join(ErrSourceNotFound, err)
	}
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	return data, nil
}

// ResolveSource maps "s3://bucket/key" to an S3Source and anything else to a
// FileSource. S3 connection settings come from S3Config in the environment.
func ResolveSource(ctx context.Context, location string) (Source, error) {
	if !strings.HasPrefix(location, "s3://") {
		return FileSource{Path: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Join(ErrInvalidSource, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("%w: %q must look like s3://bucket/key", ErrInvalidSource, location)
	}

	var cfg S3Config
	if err := Load(&cfg); err != nil {
		return nil, err
	}
	cfg.Bucket = u.Host
	cfg.Key = key

	return NewS3Source(ctx, cfg)
}

// parseOverrides decodes a flat YAML mapping into environment-style strings.
// Lists become comma separated and maps become "k:v" pairs, matching how the
// environment parser reads slices and maps.
func parseOverrides(data []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrInvalidSource, err)
	}

	out := make(map[string]string, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			out[key] = strings.Join(parts, ",")
		case map[string]any:
			parts := make([]string, 0, len(v))
			for k, item := range v {
				parts = append(parts, fmt.Sprintf("%s:%v", k, item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}
