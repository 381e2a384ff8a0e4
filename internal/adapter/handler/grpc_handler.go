package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/core/service"
	"github.com/Yendza/controller-backend/internal/port"
)

// JSONCodecName is the content subtype clients select with grpc.CallContentSubtype.
const JSONCodecName = "json"

const ledgerServiceName = "stockledger.v1.Ledger"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// LedgerServer is the gRPC surface of the ledger core. Messages are the same plain structs the
// HTTP surface uses, carried with the json codec.
type LedgerServer interface {
	Submit(ctx context.Context, req *SubmitRequest) (*TransactionResponse, error)
	GetTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	CurrentLevel(ctx context.Context, req *LevelRequest) (*LevelResponse, error)
	Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error)
}

type GRPCHandler struct {
	coordinator *service.TransactionCoordinator
	ledger      *service.LedgerService
	checker     *service.ConsistencyChecker
	catalog     port.ProductCatalog
}

func NewGRPCHandler(
	coordinator *service.TransactionCoordinator,
	ledger *service.LedgerService,
	checker *service.ConsistencyChecker,
	catalog port.ProductCatalog,
) *GRPCHandler {
	return &GRPCHandler{coordinator: coordinator, ledger: ledger, checker: checker, catalog: catalog}
}

func (h *GRPCHandler) Submit(ctx context.Context, req *SubmitRequest) (*TransactionResponse, error) {
	txn, err := h.coordinator.Submit(ctx, req.toDomain())
	if err != nil {
		return nil, grpcError(err)
	}
	resp := newTransactionResponse(txn)
	return &resp, nil
}

func (h *GRPCHandler) GetTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error) {
	txn, err := h.ledger.ReadTransaction(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := newTransactionResponse(txn)
	return &resp, nil
}

func (h *GRPCHandler) CurrentLevel(ctx context.Context, req *LevelRequest) (*LevelResponse, error) {
	product, err := h.catalog.Product(ctx, req.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}
	levels, err := h.coordinator.CurrentLevels(ctx, domain.StockKey{ProductID: product.ID, Location: req.Location})
	if err != nil {
		return nil, grpcError(err)
	}
	resp := newLevelResponse(levels[0], product)
	return &resp, nil
}

func (h *GRPCHandler) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error) {
	product, err := h.catalog.Product(ctx, req.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}
	results, err := h.checker.Reconcile(ctx, product.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ReconcileResponse{Results: newReconciliationResponses(results)}, nil
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ledgerServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Submit", LedgerServer.Submit),
		unaryHandler("GetTransaction", LedgerServer.GetTransaction),
		unaryHandler("CurrentLevel", LedgerServer.CurrentLevel),
		unaryHandler("Reconcile", LedgerServer.Reconcile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockledger/v1/ledger",
}
