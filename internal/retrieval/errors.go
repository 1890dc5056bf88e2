package retrieval

import (
	"errors"

	"github.com/lehigh-university-libraries/setlist/internal/images"
)

// Sentinel errors for the retrieval pipeline.
var (
	ErrChainExhausted      = errors.New("all retrieval strategies failed")
	ErrAllRetrievalsFailed = errors.New("no images could be retrieved")
	ErrInternal            = errors.New("internal error while processing item")
)

// FailureKind classifies a retrieval error.
type FailureKind string

const (
	KindNone                FailureKind = ""
	KindUnreachable         FailureKind = "unreachable"
	KindChainExhausted      FailureKind = "chain_exhausted"
	KindDecodeError         FailureKind = "decode_error"
	KindAllRetrievalsFailed FailureKind = "all_retrievals_failed"
	KindInternal            FailureKind = "internal_error"
)

// KindOf maps err onto the failure taxonomy. The most specific kind wins;
// errors outside the taxonomy are KindInternal.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAllRetrievalsFailed):
		return KindAllRetrievalsFailed
	case errors.Is(err, images.ErrDecode):
		return KindDecodeError
	case errors.Is(err, ErrChainExhausted):
		return KindChainExhausted
	case errors.Is(err, images.ErrUnreachable):
		return KindUnreachable
	default:
		return KindInternal
	}
}
