// Package extractor wraps an external metadata-extractor subprocess
// (conceptually exiftool run with "-j" for JSON output and "-ee" for
// embedded/extended mode) behind a long-lived, concurrency-safe client.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/types"
)

// Client issues one-shot and batched calls to the extractor binary and
// applies metadata writes. Access to the external process is serialized
// internally so C5's worker pool can share a single Client.
type Client struct {
	binaryPath   string
	extendedFlag string
	logger       logging.Logger
	mu           sync.Mutex
	closed       bool
}

// Config configures a Client.
type Config struct {
	BinaryPath   string
	ExtendedFlag string
}

// New creates an extractor Client. The binary is invoked fresh per call
// (rather than kept resident as a REPL) because exiftool's "-stay_open"
// long-running mode requires a stateful request protocol the spec's
// get_metadata/get_metadata_batch contract does not need; each call is
// already amortized across a batch of paths.
func New(cfg Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Client{binaryPath: cfg.BinaryPath, extendedFlag: cfg.ExtendedFlag, logger: logger}
}

type extractedRecord map[string]interface{}

// GetMetadata fetches metadata for a single path. It never returns an error
// for a per-file extraction failure: it returns an empty MetadataValues and
// logs the failure, per the fail-soft contract.
func (c *Client) GetMetadata(ctx context.Context, path string, extended bool) types.MetadataValues {
	results, err := c.GetMetadataBatch(ctx, []string{path}, extended)
	if err != nil {
		c.logger.Warn(ctx, err, "metadata extraction failed", "path", path)
	}
	return results[path]
}

// GetMetadataBatch fetches metadata for many paths in a single subprocess
// invocation. It returns an error only when the subprocess itself could not
// be started or its output could not be parsed at all; individual file
// failures are absorbed into an empty MetadataValues entry.
func (c *Client) GetMetadataBatch(ctx context.Context, paths []string, extended bool) (map[string]types.MetadataValues, error) {
	results := make(map[string]types.MetadataValues, len(paths))
	for _, p := range paths {
		results[p] = types.MetadataValues{}
	}
	if len(paths) == 0 {
		return results, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return results, errors.NewExtractionError(errors.ErrCodeExtractorUnstartable, "extractor client is closed", nil)
	}

	args := []string{"-j"}
	if extended {
		args = append(args, c.extendedFlag)
	}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return results, nil
		}
		return results, errors.NewExtractionError(errors.ErrCodeExtractorUnstartable, "failed to start extractor", err)
	}

	var records []extractedRecord
	if err := json.Unmarshal(output, &records); err != nil {
		c.logger.Warn(ctx, err, "extractor returned non-JSON output, treating batch as failed")
		return results, nil
	}

	for _, record := range records {
		sourcePath, _ := record["SourceFile"].(string)
		if sourcePath == "" {
			continue
		}
		values := make(types.MetadataValues, len(record))
		for key, raw := range record {
			if key == "SourceFile" {
				continue
			}
			values[key] = types.MetadataValue{Key: key, Value: fmt.Sprintf("%v", raw), Raw: raw}
		}
		results[sourcePath] = values
	}

	return results, nil
}

// WriteMetadata applies changes to a single file atomically and reports
// whether every change was accepted.
func (c *Client) WriteMetadata(ctx context.Context, path string, changes map[string]string) (bool, error) {
	if len(changes) == 0 {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, errors.NewExtractionError(errors.ErrCodeExtractorUnstartable, "extractor client is closed", nil)
	}

	args := make([]string, 0, len(changes)+2)
	for key, value := range changes {
		args = append(args, fmt.Sprintf("-%s=%s", key, value))
	}
	args = append(args, "-overwrite_original", path)

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, errors.WrapExtraction(err, errors.ErrCodeExtractionFailed, "write_metadata failed for "+path)
	}
	return true, nil
}

// Close releases resources held by the client. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
