package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsCloneIsDeep(t *testing.T) {
	now := time.Now()
	original := Args{
		"where": map[string]interface{}{"id": "1"},
		"data": []interface{}{
			map[string]interface{}{"email": "a@b.c"},
		},
		"select":  Args{"email": true},
		"ids":     []string{"1", "2"},
		"created": now,
	}

	clone := original.Clone()
	clone["where"].(map[string]interface{})["id"] = "2"
	clone["data"].([]interface{})[0].(map[string]interface{})["email"] = "x@y.z"
	clone["select"].(Args)["email"] = false
	clone["ids"].([]string)[0] = "9"

	assert.Equal(t, "1", original["where"].(map[string]interface{})["id"])
	assert.Equal(t, "a@b.c", original["data"].([]interface{})[0].(map[string]interface{})["email"])
	assert.Equal(t, true, original["select"].(Args)["email"])
	assert.Equal(t, "1", original["ids"].([]string)[0])
	assert.Equal(t, now, clone["created"])
}

func TestNilArgsClone(t *testing.T) {
	var args Args
	assert.Nil(t, args.Clone())
}

func TestOperationIsImmutable(t *testing.T) {
	args := Args{"where": map[string]interface{}{"email": "a@b.c"}}
	op := NewOperation("User", FindFirst, args)

	args["where"].(map[string]interface{})["email"] = "changed"
	got := op.Args()
	got["where"] = nil

	require.Equal(t, "a@b.c", op.Args()["where"].(map[string]interface{})["email"])

	bound := op.WithTxID("tx-1")
	assert.Equal(t, "", op.TxID())
	assert.Equal(t, "tx-1", bound.TxID())
	assert.True(t, bound.InTransaction())
	assert.Equal(t, "User.findFirst", op.Name())
}

func TestActionClassification(t *testing.T) {
	assert.True(t, QueryRaw.IsRaw())
	assert.False(t, Create.IsRaw())
	assert.True(t, Create.IsWrite())
	assert.False(t, FindMany.IsWrite())
	assert.True(t, GroupBy.Valid())
	assert.False(t, Action("explode").Valid())
	assert.Equal(t, "queryRaw", NewOperation("", QueryRaw, nil).Name())
}
