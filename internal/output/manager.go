package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// TaskOutput is the display state of one provisioning step.
type TaskOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Task  string
	Error error
	Time  time.Time
}

// Manager renders live step progress. On a terminal it redraws in place;
// otherwise it prints one line per finished step so logs and pipes stay
// readable.
type Manager struct {
	out         io.Writer
	interactive bool
	tasks       map[int]*TaskOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return NewManagerTo(os.Stdout)
}

func NewManagerTo(w io.Writer) *Manager {
	return &Manager{
		out:         w,
		interactive: isTerminal(w),
		tasks:       make(map[int]*TaskOutput),
		maxStreams:  10,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) RegisterTask(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.taskCount++
	now := time.Now()
	m.tasks[m.taskCount] = &TaskOutput{
		ID:          m.taskCount,
		Name:        name,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	return m.taskCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, ok := m.tasks[id]; ok {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, ok := m.tasks[id]; ok {
		return info.Status
	}
	return "unknown"
}

// Complete finishes a task with StatusSuccess or StatusSkipped.
func (m *Manager) Complete(id int, status, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, ok := m.tasks[id]
	if !ok {
		return
	}
	info.StreamLines = nil
	if message == "" {
		message = "Completed " + info.Name
	}
	info.Message = message
	info.Complete = true
	info.Status = status
	info.LastUpdated = time.Now()
	if !m.interactive {
		m.printTaskLine(info)
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, ok := m.tasks[id]
	if !ok {
		return
	}
	info.Complete = true
	info.Status = StatusError
	info.Error = err
	info.Message = fmt.Sprintf("%s failed", info.Name)
	info.StreamLines = nil
	info.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{Task: info.Name, Error: err, Time: info.LastUpdated})
	if !m.interactive {
		m.printTaskLine(info)
	}
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, ok := m.tasks[id]; ok {
		width, _ := terminalSize(m.out)
		info.StreamLines = append(info.StreamLines, wrapText(line, width, 2+4)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

// AddProgressBarToStream replaces the task's stream with a single progress
// line showing bytes done, total and average speed.
func (m *Manager) AddProgressBarToStream(id int, done, total int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, ok := m.tasks[id]; ok {
		elapsed := time.Since(info.StartTime).Round(time.Second).Seconds()
		text := fmt.Sprintf("%s of %s", utils.FormatBytes(uint64(max(0, done))), utils.FormatBytes(uint64(max(0, total))))
		display := fmt.Sprintf("%s%s %s %s", ProgressBar(done, total, 30), debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(done, elapsed)))
		info.StreamLines = []string{display}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusSkipped:
		return debugStyle.Render(StyleSymbols["arrow"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(message)
	case StatusSkipped:
		return debugStyle.Render(message)
	case StatusError:
		return errorStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) printTaskLine(info *TaskOutput) {
	elapsed := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	fmt.Fprintf(m.out, "  %s %s %s\n", m.statusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
}

func (m *Manager) sortedTasks() (active, completed []*TaskOutput) {
	ids := make([]int, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if t := m.tasks[id]; t.Complete {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}
	return active, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, termHeight := terminalSize(m.out)
	available := termHeight - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	active, completed := m.sortedTasks()
	needed := len(completed)
	for _, t := range active {
		needed += 1 + len(t.StreamLines)
	}
	if needed > available {
		keep := max(0, available-(needed-len(completed)))
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}

	lines := 0
	for _, t := range append(completed, active...) {
		if lines >= available {
			break
		}
		elapsed := time.Since(t.StartTime).Round(time.Second)
		if t.Complete {
			elapsed = t.LastUpdated.Sub(t.StartTime).Round(time.Second)
		}
		message := t.Message
		if message == "" {
			message = "Waiting..."
		}
		fmt.Fprintf(m.out, "  %s %s %s\n", m.statusIndicator(t.Status), debugStyle.Render(elapsed.String()), styleMessage(t.Status, message))
		lines++
		for _, line := range t.StreamLines {
			if lines >= available {
				break
			}
			fmt.Fprintf(m.out, "      %s\n", streamStyle.Render(line))
			lines++
		}
	}
	m.numLines = lines
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.interactive {
					m.updateDisplay()
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var done, failed int
	for _, t := range m.tasks {
		switch t.Status {
		case StatusSuccess, StatusSkipped:
			done++
		case StatusError:
			failed++
		}
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d steps", done, len(m.tasks))))
	if failed == 0 {
		return
	}
	fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d steps", failed, len(m.tasks))))
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, e := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", e.Time.Format("15:04:05"))),
			errorStyle.Render(e.Task))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(e.Error.Error()))
	}
}
