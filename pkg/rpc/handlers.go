package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ciyamat/atvm/pkg/atvm/address"
	"github.com/ciyamat/atvm/pkg/atvm/disasm"
	"github.com/ciyamat/atvm/pkg/atvm/exec"
	"github.com/ciyamat/atvm/pkg/atvm/host"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvmlog"
	"github.com/ciyamat/atvm/pkg/metrics"
	"github.com/ciyamat/atvm/pkg/store"
)

// Handler is the function signature for RPC method handlers.
type Handler func(params json.RawMessage) (interface{}, *RPCError)

// Handlers manages RPC method handlers and provides access to the machine
// store and per-machine host adapters.
type Handlers struct {
	s   store.Store
	log atvmlog.Logger
	m   *metrics.Metrics

	feePerStep       uint64
	maxStepsPerRound uint32

	ledgersMu sync.Mutex
	ledgers   map[address.Address]*host.Ledger

	handlers map[string]Handler
}

// NewHandlers creates a new Handlers instance backed by s, taking only the
// data layer and building derived state (per-machine ledgers) on demand.
// feePerStep and maxStepsPerRound seed those ledgers, created lazily on
// first use.
func NewHandlers(s store.Store, log atvmlog.Logger, m *metrics.Metrics, feePerStep uint64, maxStepsPerRound uint32) *Handlers {
	h := &Handlers{
		s:                s,
		log:              log,
		m:                m,
		feePerStep:       feePerStep,
		maxStepsPerRound: maxStepsPerRound,
		ledgers:          make(map[address.Address]*host.Ledger),
		handlers:         make(map[string]Handler),
	}

	h.registerHandlers()

	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// registerHandlers registers all RPC method handlers.
func (h *Handlers) registerHandlers() {
	h.handlers["deployMachine"] = h.handleDeployMachine
	h.handlers["getMachine"] = h.handleGetMachine
	h.handlers["runRound"] = h.handleRunRound
	h.handlers["advanceBlock"] = h.handleAdvanceBlock
	h.handlers["disassemble"] = h.handleDisassemble
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
}

// ledgerFor returns (creating if necessary) the ledger driving addr's
// machine. One ledger per address, same shape as pkg/atvm/host.MapAPI's
// one-ledger-per-machine contract.
func (h *Handlers) ledgerFor(addr address.Address) *host.Ledger {
	h.ledgersMu.Lock()
	defer h.ledgersMu.Unlock()
	l, ok := h.ledgers[addr]
	if !ok {
		l = host.NewLedger(h.feePerStep, h.maxStepsPerRound, nil)
		h.ledgers[addr] = l
	}
	return l
}

// handleDeployMachine handles the deployMachine RPC method.
// Params: [{address (base58), creationBytes (base64)}] or the bare object
func (h *Handlers) handleDeployMachine(params json.RawMessage) (interface{}, *RPCError) {
	var p DeployParams
	if err := unmarshalSingleOrNamed(params, &p); err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}

	addr, err := DecodeAddress(p.Address)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid address: %v", err))
	}

	creationBytes, err := DecodeBase64(p.CreationBytes)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid creationBytes: %v", err))
	}

	if err := h.s.Deploy(addr, creationBytes); err != nil {
		return nil, NewRPCError(InvalidCreationBytes, fmt.Sprintf("deploy failed: %v", err))
	}

	if h.m != nil {
		h.m.UpdateMachinesDeployed(h.s.Count())
	}

	m, err := h.s.Load(addr)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("load after deploy failed: %v", err))
	}

	return machineResult(addr, m), nil
}

// handleGetMachine handles the getMachine RPC method.
// Params: [address (base58)]
func (h *Handlers) handleGetMachine(params json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := decodeAddressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	m, err := h.s.Load(addr)
	if err != nil {
		return nil, NewRPCError(MachineNotFound, err.Error())
	}

	return machineResult(addr, m), nil
}

// handleRunRound handles the runRound RPC method: loads the machine, drives
// one round via exec.RunRound against its ledger, persists the result, and
// reports the outcome.
// Params: [address (base58)]
func (h *Handlers) handleRunRound(params json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := decodeAddressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	m, err := h.s.Load(addr)
	if err != nil {
		return nil, NewRPCError(MachineNotFound, err.Error())
	}

	ledger := h.ledgerFor(addr)
	api := host.NewMapAPI(ledger)

	stepsBefore := m.Steps
	start := time.Now()
	exec.RunRound(m, api, h.log)
	elapsed := time.Since(start)

	// The round charges fees against the machine's own balance copy; the
	// ledger is the durable side, so reflect the post-round balance there.
	ledger.SetBalance(m.CurrentBalance)

	if err := h.s.Save(addr, m); err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("save after round failed: %v", err))
	}

	errored, _ := ledger.Fatal()
	stepsCharged := uint64(m.Steps - stepsBefore)
	result := RoundResult{
		Machine: machineResult(addr, m),
		Steps:   stepsCharged,
		Fee:     stepsCharged * h.feePerStep,
		Errored: errored,
	}

	if h.m != nil {
		h.m.RecordRound(metrics.RoundOutcome{
			Steps:    stepsCharged,
			Fee:      result.Fee,
			Slept:    m.IsSleeping,
			Froze:    m.IsFrozen,
			Finished: m.IsFinished,
			Errored:  errored,
		}, elapsed)
	}

	return result, nil
}

// handleAdvanceBlock handles the advanceBlock RPC method, pushing addr's
// ledger forward one block and optionally setting its tracked balance.
// Params: [{address, balance}]
func (h *Handlers) handleAdvanceBlock(params json.RawMessage) (interface{}, *RPCError) {
	var p AdvanceBlockParams
	if err := unmarshalSingleOrNamed(params, &p); err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}

	addr, err := DecodeAddress(p.Address)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid address: %v", err))
	}

	ledger := h.ledgerFor(addr)
	if p.Balance != 0 {
		ledger.SetBalance(p.Balance)
	}
	ledger.AdvanceBlock([32]byte{}, nil)

	return true, nil
}

// handleDisassemble handles the disassemble RPC method.
// Params: [address (base58)]
func (h *Handlers) handleDisassemble(params json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := decodeAddressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	m, err := h.s.Load(addr)
	if err != nil {
		return nil, NewRPCError(MachineNotFound, err.Error())
	}

	lines := disasm.Walk(m.Code, m.Version)
	result := DisassembleResult{
		Address: EncodeAddress(addr),
		Lines:   make([]DisassemblyLine, len(lines)),
	}
	for i, l := range lines {
		result.Lines[i] = DisassemblyLine{PC: l.PC, Text: l.Text}
	}

	return result, nil
}

// handleGetHealth handles the getHealth RPC method.
// Params: none
func (h *Handlers) handleGetHealth(params json.RawMessage) (interface{}, *RPCError) {
	return HealthResult("ok"), nil
}

// handleGetVersion handles the getVersion RPC method.
// Params: none
func (h *Handlers) handleGetVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{ATVMCore: "1.0.0"}, nil
}

// decodeAddressParam parses the common single-address-parameter shape shared
// by getMachine, runRound, and disassemble.
func decodeAddressParam(params json.RawMessage) (address.Address, *RPCError) {
	var rawParams []json.RawMessage
	if err := json.Unmarshal(params, &rawParams); err != nil {
		return address.Address{}, NewRPCError(InvalidParams, "invalid params: expected array")
	}
	if len(rawParams) < 1 {
		return address.Address{}, NewRPCError(InvalidParams, "missing address parameter")
	}

	var addrStr string
	if err := json.Unmarshal(rawParams[0], &addrStr); err != nil {
		return address.Address{}, NewRPCError(InvalidParams, "invalid address parameter")
	}

	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return address.Address{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid address: %v", err))
	}
	return addr, nil
}

// unmarshalSingleOrNamed unmarshals params into dst, accepting either a
// single-element array ([{"address":...}]) or a bare object.
func unmarshalSingleOrNamed(params json.RawMessage, dst interface{}) error {
	var rawParams []json.RawMessage
	if err := json.Unmarshal(params, &rawParams); err == nil {
		if len(rawParams) < 1 {
			return fmt.Errorf("expected at least one parameter")
		}
		return json.Unmarshal(rawParams[0], dst)
	}
	return json.Unmarshal(params, dst)
}

// machineResult builds the externally observable snapshot of m.
func machineResult(addr address.Address, m *machine.Machine) MachineResult {
	var sleepUntil *uint32
	if m.SleepUntilHeight != nil {
		v := uint32(*m.SleepUntilHeight)
		sleepUntil = &v
	}

	return MachineResult{
		Address:          EncodeAddress(addr),
		Version:          m.Version,
		PC:               int64(m.PC),
		Steps:            uint64(m.Steps),
		Balance:          m.CurrentBalance,
		IsSleeping:       m.IsSleeping,
		IsStopped:        m.IsStopped,
		IsFrozen:         m.IsFrozen,
		IsFinished:       m.IsFinished,
		HadFatalError:    m.HadFatalError,
		SleepUntilHeight: sleepUntil,
		A:                fmt.Sprintf("%016x%016x%016x%016x", m.A[3], m.A[2], m.A[1], m.A[0]),
		B:                fmt.Sprintf("%016x%016x%016x%016x", m.B[3], m.B[2], m.B[1], m.B[0]),
		CallStackDepth:   len(m.CallStackUsed()) / machine.CallStackEntryBytes,
		UserStackDepth:   len(m.UserStackUsed()) / machine.UserStackEntryBytes,
	}
}
