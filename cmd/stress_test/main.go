package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/slabby/internal/adapter/handler"
	"github.com/rl1809/slabby/internal/adapter/itemcodec"
	"github.com/rl1809/slabby/internal/bootstrap"
	"github.com/rl1809/slabby/internal/config"
	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/core/service"
)

func main() {
	initialStock := flag.Int("stock", 20, "units in the shop")
	totalRequests := flag.Int("requests", 50, "concurrent buyers")
	flag.Parse()

	ctx := context.Background()

	dir, err := os.MkdirTemp("", "slabby-stress")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "shops.db")},
		Redis:    config.RedisConfig{IdempotencyTTL: time.Hour},
		Shop:     config.ShopConfig{Quantity: 1},
	}
	logger := zap.NewNop()

	// Initialize storage and service
	repo, err := bootstrap.OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer repo.Close()

	collab := bootstrap.NewStandalone()
	svc, err := bootstrap.NewService(cfg, repo, collab, nil, logger)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}

	codec := itemcodec.New()
	item, err := codec.Encode(domain.ItemDescriptor{Material: "diamond"})
	if err != nil {
		log.Fatalf("failed to encode item: %v", err)
	}

	// Seed one stocked shop
	price := decimal.NewFromInt(10)
	owner := uuid.New()
	shop := &domain.Shop{
		Location: &domain.Location{X: 0, Y: 64, Z: 0, World: "world"},
		Item:     item,
		BuyPrice: &price,
		Quantity: 1,
		Note:     "stress",
		State:    domain.ShopStateActive,
	}
	shop.SetStock(*initialStock)
	if err := repo.CreateOrUpdate(ctx, shop); err != nil {
		log.Fatalf("failed to create shop: %v", err)
	}
	if err := repo.AddOwner(ctx, shop, domain.NewOwner(owner, 100)); err != nil {
		log.Fatalf("failed to add owner: %v", err)
	}

	// Serve gRPC on loopback
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(svc, repo, codec, service.NewGate(), logger).Register(grpcServer)
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	defer grpcServer.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	client := handler.NewShopClient(conn)

	buyers := make([]uuid.UUID, *totalRequests)
	for i := range buyers {
		buyers[i] = uuid.New()
		collab.Ledger.SetBalance(buyers[i], price)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for _, buyer := range buyers {
		wg.Add(1)
		go func(buyer uuid.UUID) {
			defer wg.Done()

			_, err := client.Buy(ctx, &handler.TradeCall{
				RequestID: buyer.String(),
				Actor:     buyer,
				ShopID:    shop.ID,
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(buyer)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := int(successCount.Load())
	fail := int(failCount.Load())
	expected := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == expected && fail == *totalRequests-expected {
		fmt.Printf("PASS: Exactly %d buys succeeded, %d failed\n", expected, fail)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			expected, *totalRequests-expected, success, fail)
	}

	// Verify final stock and owner earnings
	final, err := repo.ShopByID(ctx, shop.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to reload shop: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", *final.Stock)
	if *final.Stock == *initialStock-expected {
		fmt.Println("PASS: Stock matches successful buys")
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", *initialStock-expected, *final.Stock)
	}

	earned, _ := collab.Ledger.Balance(ctx, owner)
	want := price.Mul(decimal.NewFromInt(int64(expected)))
	if earned.Equal(want) {
		fmt.Printf("PASS: Owner earned %s\n", earned)
	} else {
		fmt.Printf("FAIL: Expected owner balance %s, got %s\n", want, earned)
	}
}
