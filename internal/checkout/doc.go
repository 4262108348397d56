// Package checkout talks to the Crossmint headless checkout API. It creates
// an order for a product locator and hands the prepared payment transaction
// to the wallet for signing.
package checkout
