package config

import "time"

// Default on-disk layout.
const (
	DefaultConfigDir = "/etc/tronctl"
	DefaultDataDir   = "/var/lib/tronctl"
	DefaultLogDir    = "/var/log/tronctl"
	DefaultPIDFile   = "/run/tronctl/tronctl.pid"

	NodeConfigFile = "tron.conf"
	SettingsFile   = "tronctl.toml"
	FullNodeJar    = "FullNode.jar"
	NodeLogFile    = "fullnode.log"
	ToolLogFile    = "tronctl.log"

	SystemdUnitPath = "/etc/systemd/system/java-tron.service"
)

// Runtime requirements.
const (
	RequiredJavaVersion = "1.8"
	RecommendedMemoryGB = 32
	RecommendedDiskGB   = 2560
	DefaultMinHeap      = "8g"
	DefaultMaxHeap      = "12g"
)

// Release and config sources.
const (
	GitHubOwner        = "tronprotocol"
	GitHubRepo         = "java-tron"
	GitHubAPIBase      = "https://api.github.com"
	ReleaseDownloadURL = "https://github.com/tronprotocol/java-tron/releases/download/%s/FullNode.jar"
	NodeConfigURL      = "https://raw.githubusercontent.com/tronprotocol/java-tron/master/framework/src/main/resources/config.conf"
)

// Node health.
const (
	DefaultRPCEndpoint = "http://127.0.0.1:8090/wallet/getnowblock"
	RPCTimeout         = 5 * time.Second
	SyncSamples        = 3
	SyncInterval       = 5 * time.Second
)

// Snapshot mirrors.
var SnapshotServers = []string{
	"http://34.143.247.77",
	"http://34.86.86.229",
	"http://35.247.128.170",
}

const (
	SnapshotProbeTimeout = 5 * time.Second
	SnapshotLookbackDays = 7
)

const (
	SnapshotNone = "none"
	SnapshotLite = "lite"
	SnapshotFull = "full"
)
