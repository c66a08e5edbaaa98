package systemd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

const ServiceName = "java-tron"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=TRON FullNode Service
Documentation=https://github.com/tronprotocol/java-tron
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=root
WorkingDirectory={{.WorkingDir}}
Environment="JAVA_OPTS=-Xms{{.MinHeap}} -Xmx{{.MaxHeap}}"
ExecStart={{.Java}} $JAVA_OPTS -jar {{.Jar}} -c {{.NodeConfig}} -d {{.DataDir}}
ExecStop=/bin/kill -TERM $MAINPID
TimeoutStopSec=60
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.LogFile}}
StandardError=append:{{.LogFile}}

PrivateTmp=true
NoNewPrivileges=true
ProtectSystem=full
ProtectHome=true
ReadWritePaths={{.WorkingDir}} {{.LogDir}}

LimitNOFILE=1048576

[Install]
WantedBy=multi-user.target
`))

type unitData struct {
	Java       string
	MinHeap    string
	MaxHeap    string
	Jar        string
	NodeConfig string
	DataDir    string
	WorkingDir string
	LogFile    string
	LogDir     string
}

// Render produces the unit for the node described by s. systemd needs an
// absolute java path, so a bare command name is looked up in PATH.
func Render(s config.Settings) (string, error) {
	java := s.JavaPath
	if !filepath.IsAbs(java) {
		resolved, err := exec.LookPath(java)
		if err != nil {
			return "", utils.ConfigErrorf("cannot resolve java binary %q: %v", java, err)
		}
		java = resolved
	}
	data := unitData{
		Java:       java,
		MinHeap:    s.JVMMinHeap,
		MaxHeap:    s.JVMMaxHeap,
		Jar:        s.FullNodeJar,
		NodeConfig: s.NodeConfig,
		DataDir:    s.DataDir,
		WorkingDir: filepath.Dir(s.FullNodeJar),
		LogFile:    s.LogFile,
		LogDir:     filepath.Dir(s.LogFile),
	}
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.String(), nil
}

// Install writes the unit to path. An existing unit is kept unless force is
// set; the returned bool reports whether anything was written.
func Install(path string, s config.Settings, force bool) (bool, error) {
	log := utils.GetLogger("systemd")
	if _, err := os.Stat(path); err == nil && !force {
		log.Info().Str("unit", path).Msg("unit already exists, keeping it")
		return false, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat unit: %w", err)
	}

	content, err := Render(s)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create unit directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write unit: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to install unit: %w", err)
	}
	log.Info().Str("unit", path).Msg("unit installed")
	return true, nil
}

// EnableHint lists the commands that activate the installed unit.
func EnableHint() []string {
	return []string{
		"systemctl daemon-reload",
		"systemctl enable " + ServiceName,
		"systemctl start " + ServiceName,
	}
}
