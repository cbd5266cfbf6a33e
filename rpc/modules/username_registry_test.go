package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"namechain/core"
	"namechain/core/registry"
)

type fakeRuntime struct {
	best      common.Hash
	states    map[common.Hash]map[registry.IdentityKey][]byte
	readErr   error
	snapCalls int
	readCalls int
}

func newFakeRuntime() *fakeRuntime {
	best := common.HexToHash("0xb1")
	return &fakeRuntime{
		best:   best,
		states: map[common.Hash]map[registry.IdentityKey][]byte{best: {}},
	}
}

func (f *fakeRuntime) BestHash() common.Hash { return f.best }

func (f *fakeRuntime) Snapshot(at common.Hash) (*core.Snapshot, error) {
	f.snapCalls++
	if _, ok := f.states[at]; !ok {
		return nil, fmt.Errorf("%w: unknown block %x", core.ErrSnapshotUnavailable, at)
	}
	return &core.Snapshot{BlockHash: at}, nil
}

func (f *fakeRuntime) Username(snap *core.Snapshot, key registry.IdentityKey) ([]byte, bool, error) {
	f.readCalls++
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	value, ok := f.states[snap.BlockHash][key]
	return value, ok, nil
}

const aliceAddr = "0x0101010101010101010101010101010101010101"

func (f *fakeRuntime) set(at common.Hash, addr string, username []byte) {
	key, err := registry.ParseIdentityKey(addr)
	if err != nil {
		panic(err)
	}
	if f.states[at] == nil {
		f.states[at] = map[registry.IdentityKey][]byte{}
	}
	f.states[at][key] = username
}

func TestGetUsernameAlice(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(rt.best, aliceAddr, []byte("alice"))
	m := NewUsernameRegistryModule(rt)

	got, err := m.GetUsername(context.Background(), aliceAddr, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "alice", *got)
}

func TestGetUsernameAbsentIsNil(t *testing.T) {
	m := NewUsernameRegistryModule(newFakeRuntime())
	got, err := m.GetUsername(context.Background(), aliceAddr, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetUsernameInvalidAddressSkipsState(t *testing.T) {
	for _, addr := range []string{"", "0x1234", "not-an-address", "0x" + string(bytes.Repeat([]byte("z"), 40))} {
		rt := newFakeRuntime()
		m := NewUsernameRegistryModule(rt)
		_, err := m.GetUsername(context.Background(), addr, nil)

		var qerr *QueryError
		require.True(t, errors.As(err, &qerr), addr)
		require.Equal(t, InvalidAddress, qerr.Kind)
		require.Equal(t, CodeInvalidAddress, qerr.Code)
		require.Equal(t, MessageInvalidAddress, qerr.Message)
		require.True(t, errors.Is(err, registry.ErrInvalidAddress))
		require.Zero(t, rt.snapCalls)
		require.Zero(t, rt.readCalls)
	}
}

func TestGetUsernameInvalidUTF8Sentinel(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(rt.best, aliceAddr, []byte{0xff, 0xfe})
	m := NewUsernameRegistryModule(rt)

	got, err := m.GetUsername(context.Background(), aliceAddr, nil)
	require.NoError(t, err)
	require.Equal(t, InvalidUTF8, *got)

	raw, err := m.GetUsernameBytes(context.Background(), aliceAddr, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xfe}, []byte(*raw))
}

func TestGetUsernameAtHistoricalBlock(t *testing.T) {
	rt := newFakeRuntime()
	old := common.HexToHash("0xa1")
	rt.set(old, aliceAddr, []byte("alice"))
	rt.set(rt.best, aliceAddr, []byte("bob"))
	m := NewUsernameRegistryModule(rt)

	got, err := m.GetUsername(context.Background(), aliceAddr, &old)
	require.NoError(t, err)
	require.Equal(t, "alice", *got)

	got, err = m.GetUsername(context.Background(), aliceAddr, nil)
	require.NoError(t, err)
	require.Equal(t, "bob", *got)
}

func TestGetUsernameUnknownBlock(t *testing.T) {
	m := NewUsernameRegistryModule(newFakeRuntime())
	unknown := common.HexToHash("0xdead")
	_, err := m.GetUsername(context.Background(), aliceAddr, &unknown)

	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	require.Equal(t, SnapshotUnavailable, qerr.Kind)
	require.Equal(t, CodeRuntimeError, qerr.Code)
	require.Equal(t, MessageRuntimeError, qerr.Message)
	require.Contains(t, qerr.Data, "unknown block")
	require.True(t, errors.Is(err, core.ErrSnapshotUnavailable))
}

func TestGetUsernameBackendFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.readErr = errors.New("disk on fire")
	m := NewUsernameRegistryModule(rt)

	_, err := m.GetUsername(context.Background(), aliceAddr, nil)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	require.Equal(t, BackendFailure, qerr.Kind)
	require.Equal(t, CodeRuntimeError, qerr.Code)
	require.Equal(t, "disk on fire", qerr.Data)
}

func TestGetUsernameCancelledContext(t *testing.T) {
	rt := newFakeRuntime()
	m := NewUsernameRegistryModule(rt)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.GetUsername(ctx, aliceAddr, nil)
	require.True(t, errors.Is(err, context.Canceled))
	require.Zero(t, rt.snapCalls)
}

func TestGetUsernameEmptyStoredValue(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(rt.best, "0x0000000000000000000000000000000000000000", []byte(""))
	m := NewUsernameRegistryModule(rt)

	got, err := m.GetUsername(context.Background(), "0x0000000000000000000000000000000000000000", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "", *got)
}
