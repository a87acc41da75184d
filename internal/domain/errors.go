package domain

import "errors"

// Failure taxonomy shared across the engine. Provider-level failures are
// contained at the orchestrator boundary; only resolution-path failures
// surface to callers of Resolve.
var (
	// ErrNormalization means no usable query could be built from the
	// identifier or hints. Surfaced as an empty, negatively cached result.
	ErrNormalization = errors.New("no usable search query could be built")

	// ErrProviderTimeout and ErrProviderFailed are local to one provider
	// call. They trip the breaker and degrade the result set, never the
	// whole search.
	ErrProviderTimeout = errors.New("provider timed out")
	ErrProviderFailed  = errors.New("provider failed")

	// ErrTokenDecode rejects malformed client-supplied tokens before any
	// downstream I/O happens.
	ErrTokenDecode = errors.New("malformed subtitle token")

	// ErrExtraction means an archive was present but contained no usable
	// subtitle member.
	ErrExtraction = errors.New("no usable subtitle found in archive")

	// ErrUnsupportedFormat rejects binary or otherwise incompatible
	// payloads wrongly labeled as text subtitles.
	ErrUnsupportedFormat = errors.New("unsupported subtitle format")

	// ErrDownloadFailed means the chosen file could not be fetched after
	// exhausting retries. Surfaced as a gateway-style failure.
	ErrDownloadFailed = errors.New("subtitle download failed")
)
