package record

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Protocol limits.
const (
	MaxItemSize         = 400 * 1024
	MaxBatchWriteItems  = 25
	MaxBatchGetItems    = 100
	MaxTransactionItems = 100
	MaxTransactionBytes = 4 * 1024 * 1024
	// MaxPlaceholders caps the distinct name and value placeholders of one request.
	MaxPlaceholders = 300
)

// ItemSize estimates the stored size of an item using the service's sizing
// rules: attribute name bytes plus value bytes.
func ItemSize(m map[string]types.AttributeValue) int {
	n := 0
	for name, av := range m {
		n += len(name) + avSize(av)
	}
	return n
}

func avSize(av types.AttributeValue) int {
	switch x := av.(type) {
	case *types.AttributeValueMemberS:
		return len(x.Value)
	case *types.AttributeValueMemberN:
		return numberSize(x.Value)
	case *types.AttributeValueMemberB:
		return len(x.Value)
	case *types.AttributeValueMemberBOOL, *types.AttributeValueMemberNULL:
		return 1
	case *types.AttributeValueMemberL:
		n := 3
		for _, el := range x.Value {
			n += 1 + avSize(el)
		}
		return n
	case *types.AttributeValueMemberM:
		n := 3
		for k, el := range x.Value {
			n += 1 + len(k) + avSize(el)
		}
		return n
	case *types.AttributeValueMemberSS:
		n := 0
		for _, s := range x.Value {
			n += len(s)
		}
		return n
	case *types.AttributeValueMemberNS:
		n := 0
		for _, s := range x.Value {
			n += numberSize(s)
		}
		return n
	case *types.AttributeValueMemberBS:
		n := 0
		for _, b := range x.Value {
			n += len(b)
		}
		return n
	}
	return 0
}

// numberSize is one byte per two significant digits plus one.
func numberSize(s string) int {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "+-")
	s = strings.Replace(s, ".", "", 1)
	s = strings.Trim(s, "0")
	if s == "" {
		return 1
	}
	return (len(s)+1)/2 + 1
}
