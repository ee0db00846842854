package artifacts

import (
	"fmt"
	"net/url"
	"strings"
)

type SourceType string

const (
	SourceTypeHuggingface SourceType = "huggingface"
	SourceTypeS3          SourceType = "s3"
	SourceTypeDirect      SourceType = "direct"
	SourceTypeFile        SourceType = "file"
)

// Source is a parsed bundle location. Supported forms:
//
//	hf:<owner>/<repo>[/<subfolder>]
//	s3://<bucket>/<prefix>
//	http(s)://<host>/<path>[/manifest.json]
//	file:<dir>
type Source struct {
	Type     SourceType
	Location string
	Original string

	// Repo and SubFolder are set for huggingface sources, Bucket and
	// Prefix for s3 sources.
	Repo      string
	SubFolder string
	Bucket    string
	Prefix    string
}

func ParseSource(source string) (*Source, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty source string. Source is required")
	}

	s := &Source{Original: source}

	switch {
	case strings.HasPrefix(source, "hf:"):
		s.Type = SourceTypeHuggingface
		s.Location = strings.Trim(strings.TrimPrefix(source, "hf:"), "/")

		parts := strings.Split(s.Location, "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid huggingface source %q, expected hf:<owner>/<repo>", source)
		}
		s.Repo = strings.Join(parts[:2], "/")
		s.SubFolder = strings.Join(parts[2:], "/")

	case strings.HasPrefix(source, "s3://"):
		s.Type = SourceTypeS3
		s.Location = strings.TrimPrefix(source, "s3://")

		bucket, prefix, _ := strings.Cut(s.Location, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid s3 source %q, expected s3://<bucket>/<prefix>", source)
		}
		s.Bucket = bucket
		s.Prefix = strings.Trim(prefix, "/")

	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if _, err := url.Parse(source); err != nil {
			return nil, fmt.Errorf("invalid url source %q: %w", source, err)
		}
		s.Type = SourceTypeDirect
		s.Location = strings.TrimSuffix(strings.TrimSuffix(source, "/manifest.json"), "/")

	case strings.HasPrefix(source, "file:"):
		s.Type = SourceTypeFile
		s.Location = strings.TrimPrefix(source, "file:")
		if s.Location == "" {
			return nil, fmt.Errorf("invalid file source %q", source)
		}

	default:
		return nil, fmt.Errorf("unsupported model source: %s", source)
	}

	return s, nil
}

// repoFolderName converts "owner/repo" to the hub cache folder name
// "models--owner--repo".
func repoFolderName(repoID string) string {
	return strings.Join(append([]string{"models"}, strings.Split(repoID, "/")...), "--")
}
