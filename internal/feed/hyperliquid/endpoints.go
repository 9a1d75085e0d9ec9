package hyperliquid

// Network selects which Hyperliquid deployment the client talks to.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

const (
	mainnetWsURL   = "wss://api.hyperliquid.xyz/ws"
	mainnetInfoURL = "https://api.hyperliquid.xyz/info"
	testnetWsURL   = "wss://api.hyperliquid-testnet.xyz/ws"
	testnetInfoURL = "https://api.hyperliquid-testnet.xyz/info"
)

// WsURL returns the websocket endpoint for the network. Unknown values fall
// back to mainnet.
func WsURL(network Network) string {
	if network == Testnet {
		return testnetWsURL
	}
	return mainnetWsURL
}

// InfoURL returns the REST info endpoint for the network.
func InfoURL(network Network) string {
	if network == Testnet {
		return testnetInfoURL
	}
	return mainnetInfoURL
}
