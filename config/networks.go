package config

// NetworkConfig contains the chain parameters and default contract
// addresses of a network. Empty addresses have no default and must be set
// explicitly.
type NetworkConfig struct {
	ChainID          uint64
	RPCs             []string
	MACI             string
	Poll             string
	Semaphore        string
	ArtifactsBaseURL string
	// StartBlock is the first block scanned for sign up logs.
	StartBlock uint64
}

// Networks contains the presets by network short name.
var Networks = map[string]NetworkConfig{
	"sep": {
		ChainID:          11155111,
		RPCs:             []string{"https://ethereum-sepolia-rpc.publicnode.com"},
		ArtifactsBaseURL: DefaultArtifactsURL(),
	},
	"arb-sep": {
		ChainID:          421614,
		RPCs:             []string{"https://arbitrum-sepolia-rpc.publicnode.com"},
		ArtifactsBaseURL: DefaultArtifactsURL(),
	},
	"localhost": {
		ChainID:          31337,
		RPCs:             []string{"http://127.0.0.1:8545"},
		ArtifactsBaseURL: DefaultArtifactsURL(),
	},
}

// AvailableNetworks contains the list of networks with a preset.
var AvailableNetworks = []string{
	"sep",
	"arb-sep",
	"localhost",
}
