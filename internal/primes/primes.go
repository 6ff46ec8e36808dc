// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package primes supplies prime bucket counts for hash table sizing.
package primes

// NextPrime returns the smallest prime >= n.
func NextPrime(n int) int {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

// isPrime by trial division, n is odd and > 2 here.
func isPrime(n int) bool {
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
