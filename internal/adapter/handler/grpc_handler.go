package handler

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/core/service"
	"github.com/rl1809/slabby/internal/port"
)

const ShopServiceName = "slabby.v1.ShopService"

type GetShopRequest struct {
	ShopID int64 `json:"shop_id"`
}

type ShopAtRequest struct {
	Location domain.Location `json:"location"`
}

type TradeCall struct {
	RequestID string    `json:"request_id"`
	Actor     uuid.UUID `json:"actor"`
	ShopID    int64     `json:"shop_id"`
}

type StockCall struct {
	Actor  uuid.UUID `json:"actor"`
	ShopID int64     `json:"shop_id"`
	Amount int       `json:"amount"`
}

type ShopReply struct {
	Shop ShopView `json:"shop"`
}

type TradeReply struct {
	Success bool     `json:"success"`
	Moved   int      `json:"moved,omitempty"`
	Shop    ShopView `json:"shop"`
}

// ShopServiceServer is the server API of slabby.v1.ShopService.
type ShopServiceServer interface {
	GetShop(context.Context, *GetShopRequest) (*ShopReply, error)
	ShopAt(context.Context, *ShopAtRequest) (*ShopReply, error)
	Buy(context.Context, *TradeCall) (*TradeReply, error)
	Sell(context.Context, *TradeCall) (*TradeReply, error)
	Deposit(context.Context, *StockCall) (*TradeReply, error)
	Withdraw(context.Context, *StockCall) (*TradeReply, error)
}

func unaryHandler[Req any](method string, call func(ShopServiceServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ShopServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ShopServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ShopServiceServer), ctx, req.(*Req))
			})
		},
	}
}

var ShopServiceDesc = grpc.ServiceDesc{
	ServiceName: ShopServiceName,
	HandlerType: (*ShopServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetShop", func(s ShopServiceServer, ctx context.Context, in *GetShopRequest) (any, error) {
			return s.GetShop(ctx, in)
		}),
		unaryHandler("ShopAt", func(s ShopServiceServer, ctx context.Context, in *ShopAtRequest) (any, error) {
			return s.ShopAt(ctx, in)
		}),
		unaryHandler("Buy", func(s ShopServiceServer, ctx context.Context, in *TradeCall) (any, error) {
			return s.Buy(ctx, in)
		}),
		unaryHandler("Sell", func(s ShopServiceServer, ctx context.Context, in *TradeCall) (any, error) {
			return s.Sell(ctx, in)
		}),
		unaryHandler("Deposit", func(s ShopServiceServer, ctx context.Context, in *StockCall) (any, error) {
			return s.Deposit(ctx, in)
		}),
		unaryHandler("Withdraw", func(s ShopServiceServer, ctx context.Context, in *StockCall) (any, error) {
			return s.Withdraw(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slabby/v1/shop.proto",
}

type GRPCHandler struct {
	svc    *service.CommerceService
	repo   port.ShopRepository
	codec  port.ItemCodec
	gate   *service.Gate
	logger *zap.Logger
}

func NewGRPCHandler(svc *service.CommerceService, repo port.ShopRepository, codec port.ItemCodec, gate *service.Gate, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = service.NewGate()
	}
	return &GRPCHandler{svc: svc, repo: repo, codec: codec, gate: gate, logger: logger}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ShopServiceDesc, h)
}

func (h *GRPCHandler) GetShop(ctx context.Context, req *GetShopRequest) (*ShopReply, error) {
	shop, err := h.load(ctx, req.ShopID)
	if err != nil {
		return nil, h.fail("GetShop", err)
	}
	return &ShopReply{Shop: NewShopView(h.codec, shop)}, nil
}

func (h *GRPCHandler) ShopAt(ctx context.Context, req *ShopAtRequest) (*ShopReply, error) {
	shop, err := h.repo.ShopAt(ctx, req.Location)
	if err != nil {
		return nil, h.fail("ShopAt", err)
	}
	if shop == nil {
		return nil, h.fail("ShopAt", domain.New(domain.CodeNotFound, "no shop at "+req.Location.String()))
	}
	return &ShopReply{Shop: NewShopView(h.codec, shop)}, nil
}

func (h *GRPCHandler) Buy(ctx context.Context, req *TradeCall) (*TradeReply, error) {
	return h.trade(ctx, "Buy", req, h.svc.Buy)
}

func (h *GRPCHandler) Sell(ctx context.Context, req *TradeCall) (*TradeReply, error) {
	return h.trade(ctx, "Sell", req, h.svc.Sell)
}

func (h *GRPCHandler) Deposit(ctx context.Context, req *StockCall) (*TradeReply, error) {
	return h.moveStock(ctx, "Deposit", req, h.svc.Deposit)
}

func (h *GRPCHandler) Withdraw(ctx context.Context, req *StockCall) (*TradeReply, error) {
	return h.moveStock(ctx, "Withdraw", req, func(ctx context.Context, actor uuid.UUID, shop *domain.Shop, amount int) (int, error) {
		return amount, h.svc.Withdraw(ctx, actor, shop, amount)
	})
}

func (h *GRPCHandler) trade(ctx context.Context, method string, req *TradeCall, op func(context.Context, uuid.UUID, *domain.Shop) error) (*TradeReply, error) {
	var shop *domain.Shop
	err := h.svc.Once(ctx, req.RequestID, func(ctx context.Context) error {
		return h.gate.Do(ctx, func(ctx context.Context) error {
			var err error
			if shop, err = h.load(ctx, req.ShopID); err != nil {
				return err
			}
			return op(ctx, req.Actor, shop)
		})
	})
	if err != nil {
		return nil, h.fail(method, err)
	}
	return &TradeReply{Success: true, Shop: NewShopView(h.codec, shop)}, nil
}

func (h *GRPCHandler) moveStock(ctx context.Context, method string, req *StockCall, op func(context.Context, uuid.UUID, *domain.Shop, int) (int, error)) (*TradeReply, error) {
	var (
		shop  *domain.Shop
		moved int
	)
	err := h.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		if shop, err = h.load(ctx, req.ShopID); err != nil {
			return err
		}
		moved, err = op(ctx, req.Actor, shop, req.Amount)
		return err
	})
	if err != nil {
		return nil, h.fail(method, err)
	}
	return &TradeReply{Success: true, Moved: moved, Shop: NewShopView(h.codec, shop)}, nil
}

func (h *GRPCHandler) load(ctx context.Context, id int64) (*domain.Shop, error) {
	shop, err := h.repo.ShopByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, domain.New(domain.CodeNotFound, "shop not found")
	}
	return shop, nil
}

func (h *GRPCHandler) fail(method string, err error) error {
	if code := domain.Category(err); code == domain.CodeUnrecoverableStorage || code == domain.CodeUnknown {
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return toGRPCStatus(err)
}

// ShopClient calls slabby.v1.ShopService with the JSON codec.
type ShopClient struct {
	cc grpc.ClientConnInterface
}

func NewShopClient(cc grpc.ClientConnInterface) *ShopClient {
	return &ShopClient{cc: cc}
}

func (c *ShopClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ShopServiceName+"/"+method, in, out, opts...)
}

func (c *ShopClient) GetShop(ctx context.Context, in *GetShopRequest, opts ...grpc.CallOption) (*ShopReply, error) {
	out := new(ShopReply)
	if err := c.invoke(ctx, "GetShop", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShopClient) ShopAt(ctx context.Context, in *ShopAtRequest, opts ...grpc.CallOption) (*ShopReply, error) {
	out := new(ShopReply)
	if err := c.invoke(ctx, "ShopAt", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShopClient) Buy(ctx context.Context, in *TradeCall, opts ...grpc.CallOption) (*TradeReply, error) {
	out := new(TradeReply)
	if err := c.invoke(ctx, "Buy", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShopClient) Sell(ctx context.Context, in *TradeCall, opts ...grpc.CallOption) (*TradeReply, error) {
	out := new(TradeReply)
	if err := c.invoke(ctx, "Sell", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShopClient) Deposit(ctx context.Context, in *StockCall, opts ...grpc.CallOption) (*TradeReply, error) {
	out := new(TradeReply)
	if err := c.invoke(ctx, "Deposit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShopClient) Withdraw(ctx context.Context, in *StockCall, opts ...grpc.CallOption) (*TradeReply, error) {
	out := new(TradeReply)
	if err := c.invoke(ctx, "Withdraw", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ ShopServiceServer = (*GRPCHandler)(nil)
