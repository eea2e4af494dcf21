package executor

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

// Checked in order; the first list that matches wins.
var (
	blockhashExpiredPatterns = []string{
		"BlockhashNotFound",
		"blockhash not found",
		"Transaction expired",
		"TransactionExpiredBlockheightExceededError",
		"recent blockhash",
		"expired blockhash",
	}
	networkTransientPatterns = []string{
		"timeout",
		"network",
		"connection",
		"ECONNRESET",
		"ENOTFOUND",
		"ETIMEDOUT",
		"socket hang up",
		"fetch failed",
	}
)

// Classified is implemented by errors that know their own retry class.
type Classified interface {
	Classified() domain.ErrorClass
}

// ClassifyError determines the retry class of a failed submission.
func ClassifyError(err error) domain.ErrorClass {
	if err == nil {
		return domain.ClassNone
	}

	var c Classified
	if errors.As(err, &c) {
		if class := c.Classified(); class != domain.ClassNone {
			return class
		}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, blockhashExpiredPatterns) {
		return domain.ClassBlockhashExpired
	}
	if containsAny(msg, networkTransientPatterns) {
		return domain.ClassNetworkTransient
	}

	return domain.ClassNonRetryable
}

func containsAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
