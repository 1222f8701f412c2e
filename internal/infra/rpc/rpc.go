// Package rpc provides a resilient Ethereum RPC client.
//
// A Client fans one logical chain out over several endpoints with:
//   - Ordered failover across providers
//   - Exponential backoff retries per provider
//   - A circuit breaker that parks failing providers
//   - Health reporting for the health server
//
// # Quick Start
//
//	router := routing.NewRouter()
//	p, _ := provider.DialEthProvider(ctx, "node-0", url)
//	router.AddProvider("anchor", p)
//	client := rpc.NewClient("anchor", router, routing.DefaultRetryConfig, 15*time.Second)
//	head, err := client.BlockNumber(ctx)
//
// The Client satisfies bind.ContractCaller and bind.ContractFilterer, so it can
// back go-ethereum bound contracts directly.
//
// # Package Structure
//
//   - provider/ - endpoint wrapper over ethclient with health tracking
//   - routing/  - provider ordering, circuit breaker, retry and failover
//   - rpctest/  - in-memory backend for tests
package rpc
