// Package ves provides the upstream rate fetchers for the Venezuelan Bolivar (VES).
//
// # Fetchers
//
// ## BCV (Official Central Bank)
//
// Source: "BCV"
// URL: https://www.bcv.org.ve/
//
// Scrapes the official USD/VES rate from Banco Central de Venezuela.
// Returns a single MID rate. The effective date (AsOf) is parsed from
// the "Fecha Valor" field on the page.
//
// ## Binance P2P (USDT)
//
// Source: "BinanceP2P"
// API: https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search
//
// Fetches peer-to-peer USDT/VES rates from Binance.
// Returns BUY and SELL rates calculated as the median of filtered offers.
// The BUY / SELL labels are the advertiser's side of the trade, as
// reported by the P2P market.
//
// Offer collection:
//   - Fetches up to 30 offers (3 pages of 10)
//   - Parses price, limits, availability, and advertiser metrics
//
// Offer filtering (strict, then relaxed if needed):
//   - Minimum 50 monthly orders (relaxed: 20)
//   - Minimum 95% completion rate (relaxed: 90%)
//   - Minimum 50 USDT available
//   - Typical transaction amount of 100 USDT must be within limits
//
// Final rate is the median of the top 12 offers sorted by price
// (ascending for BUY, descending for SELL), with the Wilson lower bound
// of the completion rate as tiebreaker.
package ves
