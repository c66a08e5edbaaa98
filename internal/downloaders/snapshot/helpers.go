package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"golang.org/x/sync/errgroup"
)

// UnreachableLatency sorts mirrors that did not answer after every live one.
const UnreachableLatency = 999 * time.Second

type Kind struct {
	Name   string
	Prefix string
	SizeGB int
}

var kinds = map[string]Kind{
	config.SnapshotLite: {Name: config.SnapshotLite, Prefix: "LiteFullNode_output-directory", SizeGB: 53},
	config.SnapshotFull: {Name: config.SnapshotFull, Prefix: "FullNode_output-directory", SizeGB: 2937},
}

func KindFor(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, utils.ConfigErrorf("unknown snapshot type %q", name)
	}
	return k, nil
}

type ServerProbe struct {
	URL       string
	Latency   time.Duration
	Available bool
}

type Metadata struct {
	Server      string
	Date        string // YYYYMMDD
	SizeGB      int
	MD5         string
	DownloadURL string
}

// Selector finds the fastest mirror and its newest snapshot.
type Selector struct {
	Client       utils.HTTPDoer
	Servers      []string
	ProbeTimeout time.Duration
	Now          func() time.Time
}

func NewSelector(client utils.HTTPDoer, servers []string) *Selector {
	return &Selector{
		Client:       client,
		Servers:      servers,
		ProbeTimeout: config.SnapshotProbeTimeout,
		Now:          time.Now,
	}
}

// ProbeServers measures HEAD latency for every mirror, fastest first.
func (s *Selector) ProbeServers(ctx context.Context) []ServerProbe {
	log := utils.GetLogger("snapshot/probe")
	probes := make([]ServerProbe, len(s.Servers))
	g := new(errgroup.Group)
	for i, server := range s.Servers {
		g.Go(func() error {
			probes[i] = s.probe(ctx, server)
			log.Debug().Str("server", server).Dur("latency", probes[i].Latency).Bool("available", probes[i].Available).Msg("probed mirror")
			return nil
		})
	}
	g.Wait()
	sort.SliceStable(probes, func(i, j int) bool { return probes[i].Latency < probes[j].Latency })
	return probes
}

func (s *Selector) probe(ctx context.Context, server string) ServerProbe {
	unreachable := ServerProbe{URL: server, Latency: UnreachableLatency}
	ctx, cancel := context.WithTimeout(ctx, s.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, server, nil)
	if err != nil {
		return unreachable
	}
	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return unreachable
	}
	resp.Body.Close()
	return ServerProbe{URL: server, Latency: time.Since(start), Available: true}
}

// SelectFastest returns the first available mirror.
func (s *Selector) SelectFastest(ctx context.Context) (string, error) {
	for _, p := range s.ProbeServers(ctx) {
		if p.Available {
			return p.URL, nil
		}
	}
	return "", &utils.DownloadError{URL: strings.Join(s.Servers, ","), Msg: "no snapshot server available"}
}

// LatestSnapshot looks for the newest dated backup on server, walking back
// from today (UTC) for config.SnapshotLookbackDays days.
func (s *Selector) LatestSnapshot(ctx context.Context, server, kindName string) (Metadata, error) {
	kind, err := KindFor(kindName)
	if err != nil {
		return Metadata{}, err
	}
	log := utils.GetLogger("snapshot/lookup")
	today := s.Now().UTC()
	for days := 0; days < config.SnapshotLookbackDays; days++ {
		date := today.AddDate(0, 0, -days).Format("20060102")
		url := fmt.Sprintf("%s/backup%s/%s.tgz", strings.TrimSuffix(server, "/"), date, kind.Prefix)
		if !s.exists(ctx, url) {
			log.Debug().Str("url", url).Msg("no snapshot for date")
			continue
		}
		md5sum := s.fetchMD5(ctx, url+".md5sum")
		log.Info().Str("url", url).Str("md5", md5sum).Msg("found snapshot")
		return Metadata{
			Server:      server,
			Date:        date,
			SizeGB:      kind.SizeGB,
			MD5:         md5sum,
			DownloadURL: url,
		}, nil
	}
	return Metadata{}, &utils.DownloadError{URL: server, Msg: fmt.Sprintf("no %s snapshot in the last %d days", kind.Name, config.SnapshotLookbackDays)}
}

func (s *Selector) exists(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

var errNotFound = errors.New("not found")

// fetchMD5 returns the first whitespace-separated field of a .md5sum file,
// or "" when it cannot be read.
func (s *Selector) fetchMD5(ctx context.Context, url string) string {
	var sum string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		scanner := bufio.NewScanner(resp.Body)
		if scanner.Scan() {
			if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
				sum = fields[0]
			}
		}
		return scanner.Err()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)); err != nil {
		log := utils.GetLogger("snapshot/lookup")
		log.Warn().Err(err).Str("url", url).Msg("md5 unavailable")
		return ""
	}
	return sum
}
