package adjudicator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// EngineID holds the identification received during the handshake.
type EngineID struct {
	Name            string
	Author          string
	ProtocolVersion int
}

// Process drives an adjudication engine running as a subprocess. Commands are
// single lines on stdin; every reply is a single line on stdout of the form
// "<keyword> <json>" or "error <message>".
//
//	adj                 -> id ... / protocol_version N / adjok
//	isready             -> readyok
//	newgame <map>       -> readyok
//	state               -> state {snapshot}
//	possible            -> possible {location: [orders]}
//	orders <POWER> [..] -> ok
//	process             -> result {result}
//	quit
//
// Process is not safe for concurrent use; the orchestrator drives it from a
// single goroutine.
type Process struct {
	path string
	args []string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	mu     sync.Mutex
	closed bool
	exited chan struct{}

	ID EngineID
}

var _ Engine = (*Process)(nil)

// NewProcess creates a client for the engine binary at path. The process is
// not started until Start is called.
func NewProcess(path string, args ...string) *Process {
	return &Process{path: path, args: args}
}

// Start launches the engine, performs the handshake and, when mapName is not
// empty, starts a new game on that map.
func (p *Process) Start(ctx context.Context, mapName string) error {
	if err := p.start(); err != nil {
		return fmt.Errorf("adjudicator: start engine: %w", err)
	}
	if err := p.handshake(ctx); err != nil {
		p.Close()
		return fmt.Errorf("adjudicator: handshake: %w", err)
	}
	if mapName != "" {
		p.send("newgame " + mapName)
		if _, err := p.await(ctx, "readyok"); err != nil {
			p.Close()
			return fmt.Errorf("adjudicator: newgame %s: %w", mapName, err)
		}
	}
	log.Info().Str("engine", p.ID.Name).Int("protocol", p.ID.ProtocolVersion).Msg("adjudicator ready")
	return nil
}

// State implements Engine.
func (p *Process) State(ctx context.Context) (*diplomacy.PhaseState, error) {
	var snap diplomacy.Snapshot
	if err := p.call(ctx, "state", "state", &snap); err != nil {
		return nil, err
	}
	ps, err := diplomacy.NewPhaseState(snap)
	if err != nil {
		return nil, fmt.Errorf("adjudicator: state: %w", err)
	}
	return ps, nil
}

// PossibleOrders implements Engine.
func (p *Process) PossibleOrders(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	if err := p.call(ctx, "possible", "possible", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetOrders implements Engine.
func (p *Process) SetOrders(ctx context.Context, power diplomacy.Power, orders []string) error {
	if orders == nil {
		orders = []string{}
	}
	body, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("adjudicator: encode orders: %w", err)
	}
	return p.call(ctx, fmt.Sprintf("orders %s %s", power, body), "ok", nil)
}

// Process implements Engine.
func (p *Process) Process(ctx context.Context) (*Result, error) {
	var res Result
	if err := p.call(ctx, "process", "result", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close sends "quit" and waits for the process to exit. If it does not exit
// within 3 seconds it is killed.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if p.stdin != nil {
		fmt.Fprintf(p.stdin, "quit\n")
	}
	p.closed = true
	p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
	}

	if p.exited != nil {
		select {
		case <-p.exited:
		case <-time.After(3 * time.Second):
			log.Warn().Str("engine", p.path).Msg("adjudicator did not exit within 3s, killing")
			if p.cmd != nil && p.cmd.Process != nil {
				p.cmd.Process.Kill()
			}
			<-p.exited
		}
	}
	return nil
}

func (p *Process) start() error {
	p.cmd = exec.Command(p.path, p.args...)

	var err error
	p.stdin, err = p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.exited = make(chan struct{})
	p.lines = make(chan string, 64)

	// One reader owns stdout for the lifetime of the process; lines is closed
	// once the engine closes its end.
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("adjudicator stdout")
		}
		close(p.lines)
	}()
	go func() {
		p.cmd.Wait()
		close(p.exited)
	}()
	return nil
}

// handshake sends "adj", reads id lines until "adjok", then synchronizes with
// isready/readyok.
func (p *Process) handshake(ctx context.Context) error {
	p.send("adj")
	for {
		line, err := p.next(ctx)
		if err != nil {
			return fmt.Errorf("waiting for adjok: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "id name "):
			p.ID.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			p.ID.Author = strings.TrimPrefix(line, "id author ")
		case strings.HasPrefix(line, "protocol_version "):
			fmt.Sscanf(strings.TrimPrefix(line, "protocol_version "), "%d", &p.ID.ProtocolVersion)
		case line == "adjok":
			p.send("isready")
			if _, err := p.await(ctx, "readyok"); err != nil {
				return fmt.Errorf("waiting for readyok: %w", err)
			}
			return nil
		}
	}
}

// call sends a command and decodes the JSON payload of the reply carrying
// keyword. A nil out expects a bare keyword.
func (p *Process) call(ctx context.Context, command, keyword string, out any) error {
	if err := p.ready(); err != nil {
		return err
	}
	verb, _, _ := strings.Cut(command, " ")
	p.send(command)
	payload, err := p.await(ctx, keyword)
	if err != nil {
		return fmt.Errorf("adjudicator: %s: %w", verb, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("adjudicator: %s: decode reply: %w", verb, err)
	}
	return nil
}

// await reads lines until one starts with keyword, returning the rest of the
// line. "error ..." replies become errors; "info ..." lines are logged.
func (p *Process) await(ctx context.Context, keyword string) (string, error) {
	for {
		line, err := p.next(ctx)
		if err != nil {
			return "", err
		}
		if line == keyword {
			return "", nil
		}
		if rest, ok := strings.CutPrefix(line, keyword+" "); ok {
			return rest, nil
		}
		if msg, ok := strings.CutPrefix(line, "error "); ok {
			return "", fmt.Errorf("engine error: %s", msg)
		}
		if msg, ok := strings.CutPrefix(line, "info "); ok {
			log.Debug().Str("engine", p.ID.Name).Msg(msg)
		}
	}
}

func (p *Process) next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", fmt.Errorf("engine closed stdout")
		}
		return line, nil
	case <-ctx.Done():
		return "", fmt.Errorf("context canceled: %w", ctx.Err())
	}
}

func (p *Process) ready() error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !p.isAlive() {
		return fmt.Errorf("adjudicator: engine process is not running")
	}
	return nil
}

func (p *Process) send(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.stdin == nil {
		return
	}
	fmt.Fprintf(p.stdin, "%s\n", line)
}

func (p *Process) isAlive() bool {
	if p.exited == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}
