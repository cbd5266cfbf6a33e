package modules

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"namechain/core"
	"namechain/core/registry"
)

// InvalidUTF8 is returned in place of a stored username that is not valid
// UTF-8.
const InvalidUTF8 = "Invalid UTF-8"

var tracer = otel.Tracer("namechain/rpc/modules")

// RuntimeAPI is the read surface the gateway needs from the runtime.
type RuntimeAPI interface {
	BestHash() common.Hash
	Snapshot(at common.Hash) (*core.Snapshot, error)
	Username(snap *core.Snapshot, key registry.IdentityKey) ([]byte, bool, error)
}

// UsernameRegistryModule answers username lookups against a chosen block.
type UsernameRegistryModule struct {
	runtime RuntimeAPI
}

// NewUsernameRegistryModule constructs the gateway.
func NewUsernameRegistryModule(runtime RuntimeAPI) *UsernameRegistryModule {
	return &UsernameRegistryModule{runtime: runtime}
}

// GetUsername returns the username stored for address at block at, or at
// the best block when at is nil. A nil result means no entry.
func (m *UsernameRegistryModule) GetUsername(ctx context.Context, address string, at *common.Hash) (*string, error) {
	raw, ok, err := m.lookup(ctx, address, at)
	if err != nil || !ok {
		return nil, err
	}
	name := InvalidUTF8
	if utf8.Valid(raw) {
		name = string(raw)
	}
	return &name, nil
}

// GetUsernameBytes is GetUsername without text decoding.
func (m *UsernameRegistryModule) GetUsernameBytes(ctx context.Context, address string, at *common.Hash) (*hexutil.Bytes, error) {
	raw, ok, err := m.lookup(ctx, address, at)
	if err != nil || !ok {
		return nil, err
	}
	out := hexutil.Bytes(raw)
	return &out, nil
}

func (m *UsernameRegistryModule) lookup(ctx context.Context, address string, at *common.Hash) (raw []byte, ok bool, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "usernameRegistry.lookup")
	defer func() {
		span.SetAttributes(attribute.Bool("found", ok))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	key, err := registry.ParseIdentityKey(address)
	if err != nil {
		return nil, false, invalidAddressError(err)
	}
	if m == nil || m.runtime == nil {
		return nil, false, runtimeError(BackendFailure, errors.New("runtime offline"))
	}
	if err := ctx.Err(); err != nil {
		return nil, false, runtimeError(BackendFailure, err)
	}
	hash := m.runtime.BestHash()
	if at != nil {
		hash = *at
	}
	span.SetAttributes(attribute.String("block", hash.Hex()))
	snap, err := m.runtime.Snapshot(hash)
	if err != nil {
		if errors.Is(err, core.ErrSnapshotUnavailable) {
			return nil, false, runtimeError(SnapshotUnavailable, err)
		}
		return nil, false, runtimeError(BackendFailure, err)
	}
	raw, ok, err = m.runtime.Username(snap, key)
	if err != nil {
		return nil, false, runtimeError(BackendFailure, err)
	}
	return raw, ok, nil
}
