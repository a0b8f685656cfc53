package jsonrpc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txParams(jsonPayload string) string {
	return `[{"operations":[["custom_json",{"required_auths":[],"required_posting_auths":["alice"],"id":"follow","json":"` + jsonPayload + `"}]]}]`
}

func TestLimitsIgnoresNonBroadcastMethods(t *testing.T) {
	l := Limits{MaxCustomJSONOpLength: 10}
	err := l.Check("get_block", txParams(strings.Repeat("x", 50)))
	assert.Nil(t, err)
}

func TestLimitsCustomJSONAtBoundaryPasses(t *testing.T) {
	l := Limits{MaxCustomJSONOpLength: 2000}
	payload := strings.Repeat("a", 2000)
	err := l.Check("broadcast_transaction_synchronous", txParams(payload))
	assert.Nil(t, err)
}

func TestLimitsCustomJSONOverBoundaryFails(t *testing.T) {
	l := Limits{MaxCustomJSONOpLength: 2000}
	payload := strings.Repeat("a", 2001)
	err := l.Check("broadcast_transaction_synchronous", txParams(payload))
	require.NotNil(t, err)
	assert.Equal(t, -32002, err.Kind.Code())
}

func TestLimitsAccountDenyListRejects(t *testing.T) {
	l := Limits{AccountDeny: map[string]struct{}{"alice": {}}}
	err := l.Check("broadcast_transaction", txParams("x"))
	require.NotNil(t, err)
	assert.Equal(t, -32001, err.Kind.Code())
}

func TestLimitsAccountAllowListAcceptsListedAccount(t *testing.T) {
	l := Limits{AccountAllow: map[string]struct{}{"alice": {}}}
	err := l.Check("broadcast_transaction", txParams("x"))
	assert.Nil(t, err)
}

func TestLimitsAccountAllowListRejectsUnlistedAccount(t *testing.T) {
	l := Limits{AccountAllow: map[string]struct{}{"bob": {}}}
	err := l.Check("broadcast_transaction", txParams("x"))
	require.NotNil(t, err)
	assert.Equal(t, -32001, err.Kind.Code())
}

func TestLimitsNoListsPermitsEveryAccount(t *testing.T) {
	l := Limits{}
	err := l.Check("broadcast_transaction", txParams("x"))
	assert.Nil(t, err)
}
