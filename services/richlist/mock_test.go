package richlist

import (
	"context"

	"github.com/bsv-blockchain/richlist/model"
	"github.com/stretchr/testify/mock"
)

type mockNode struct {
	mock.Mock
}

func (m *mockNode) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	args := m.Called(ctx, source)
	ch, _ := args.Get(0).(chan *model.Notification)

	return ch, args.Error(1)
}

func (m *mockNode) GetBestBlockHash(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockNode) GetBlockHeader(ctx context.Context, hash string) (*model.BlockHeader, error) {
	args := m.Called(ctx, hash)
	header, _ := args.Get(0).(*model.BlockHeader)

	return header, args.Error(1)
}

func (m *mockNode) GetBlockHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error) {
	args := m.Called(ctx, height)
	header, _ := args.Get(0).(*model.BlockHeader)

	return header, args.Error(1)
}

func (m *mockNode) GetBlockOverview(ctx context.Context, hash string) (*model.BlockOverview, error) {
	args := m.Called(ctx, hash)
	overview, _ := args.Get(0).(*model.BlockOverview)

	return overview, args.Error(1)
}

func (m *mockNode) GetDetailedTransaction(ctx context.Context, txid string) (*model.Transaction, error) {
	args := m.Called(ctx, txid)
	tx, _ := args.Get(0).(*model.Transaction)

	return tx, args.Error(1)
}

func (m *mockNode) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	args := m.Called(ctx, checkLiveness)
	return args.Int(0), args.String(1), args.Error(2)
}

// recorder captures what a handler writes through a Responder.
type recorder struct {
	code int
	body interface{}
}

func (r *recorder) JSON(code int, i interface{}) error {
	r.code = code
	r.body = i

	return nil
}
