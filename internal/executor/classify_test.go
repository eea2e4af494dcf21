package executor

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

type classifiedErr struct {
	class domain.ErrorClass
}

func (e classifiedErr) Error() string { return "insufficient funds" }
func (e classifiedErr) Classified() domain.ErrorClass { return e.class }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want domain.ErrorClass
	}{
		{"Transaction simulation failed: BlockhashNotFound", domain.ClassBlockhashExpired},
		{"rpc error: Blockhash not found", domain.ClassBlockhashExpired},
		{"transaction expired: block height exceeded", domain.ClassBlockhashExpired},
		{"TransactionExpiredBlockheightExceededError: signature abc", domain.ClassBlockhashExpired},
		{"missing RECENT BLOCKHASH", domain.ClassBlockhashExpired},
		{"expired blockhash", domain.ClassBlockhashExpired},
		{"request Timeout", domain.ClassNetworkTransient},
		{"network unreachable", domain.ClassNetworkTransient},
		{"read tcp: connection reset by peer", domain.ClassNetworkTransient},
		{"econnreset", domain.ClassNetworkTransient},
		{"getaddrinfo ENOTFOUND api.mainnet-beta.solana.com", domain.ClassNetworkTransient},
		{"ETIMEDOUT", domain.ClassNetworkTransient},
		{"socket hang up", domain.ClassNetworkTransient},
		{"TypeError: fetch failed", domain.ClassNetworkTransient},
		{"insufficient funds", domain.ClassNonRetryable},
		{"custom program error: 0x1771", domain.ClassNonRetryable},
		{"", domain.ClassNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(errors.New(tt.msg)))
		})
	}
}

func TestClassifyError_BlockhashCheckedFirst(t *testing.T) {
	err := errors.New("network error: blockhash not found")
	assert.Equal(t, domain.ClassBlockhashExpired, ClassifyError(err))
}

func TestClassifyError_Wrapped(t *testing.T) {
	err := errors.Wrap(errors.New("connection refused"), "send transaction")
	assert.Equal(t, domain.ClassNetworkTransient, ClassifyError(err))
}

func TestClassifyError_StructuredWins(t *testing.T) {
	err := errors.Wrap(classifiedErr{class: domain.ClassNetworkTransient}, "submit")
	assert.Equal(t, domain.ClassNetworkTransient, ClassifyError(err))

	// no structured class falls back to the message
	assert.Equal(t, domain.ClassNonRetryable, ClassifyError(classifiedErr{class: domain.ClassNone}))
}

func TestClassifyError_NilAndContext(t *testing.T) {
	assert.Equal(t, domain.ClassNone, ClassifyError(nil))
	assert.Equal(t, domain.ClassNonRetryable, ClassifyError(context.Canceled))
}
