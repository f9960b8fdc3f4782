// Package test holds black-box tests against the public goRotate API.
//
// Tests tagged integration exercise Redis round-trip budgets and Redis
// deployment compatibility:
//
//	go test -tags integration ./test/...
//
// Set REDIS_ADDR or REDIS_SENTINEL_ADDRS to include real deployments.
package test
