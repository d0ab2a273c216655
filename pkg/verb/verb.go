// Package verb implements the verb vocabulary — the tagged operations a
// query asks an agent to perform — with the JSON wire codec from spec
// §4.3/§6. A Verb value is the "what" half of a query envelope; the
// predicate package supplies the "which" half.
package verb

import (
	"encoding/json"
	"fmt"
)

// Kind tags which verb variant a Verb holds.
type Kind string

const (
	KindGet         Kind = "get"
	KindSet         Kind = "set"
	KindSetArray    Kind = "seta"
	KindRemoveArray Kind = "rma"
	KindRun         Kind = "run"
	KindLaunch      Kind = "launch"
	KindSpawn       Kind = "spawn"
	KindCopy        Kind = "cp"
	KindFetch       Kind = "fetch"
	KindRestart     Kind = "restart"
	KindChain       Kind = "chain"
	KindWait        Kind = "wait"
	KindInvoke      Kind = "invoke"
)

// RunCommand is the payload shared by run, launch and spawn: a shell
// command, an optional working directory, and (for launch) the store key
// under which an asynchronous result is filed.
type RunCommand struct {
	Cmd string `json:"cmd"`
	Pwd string `json:"pwd,omitempty"`
	Job string `json:"job,omitempty"`
}

// CopyFile is the cp verb's planning payload: the destination-side
// filename and path, optional file mode, and optional MD5 hash for
// post-write verification.
type CopyFile struct {
	Filename string `json:"filename"`
	Dest     string `json:"dest"`
	Perms    *uint32 `json:"perms,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// FetchFile is the fetch verb's payload: the source path on the agent.
type FetchFile struct {
	Source string `json:"source"`
}

// Verb is the recursive tagged operation structure. Only the fields
// relevant to Kind are meaningful; see the constructors below for the
// shape each kind expects.
type Verb struct {
	Kind Kind

	Keys []string       // get
	KV   map[string]any // set, seta, rma — a nil value under Set means delete

	Run RunCommand // run, launch, spawn

	Copy  CopyFile  // cp
	Fetch FetchFile // fetch

	ExitCode int // restart

	Chain []Verb // chain

	InvokeName string   // invoke
	InvokeArgs []string // invoke
}

// Get reads keys (read-only); built-in keys such as time are synthesized
// by the agent on the fly.
func Get(keys ...string) Verb { return Verb{Kind: KindGet, Keys: keys} }

// Ping is the controller-local shorthand for Get(addr, name): on the
// wire it is indistinguishable from a plain get — the controller alone
// tracks the send time to measure round-trip latency.
func Ping() Verb { return Get("addr", "name") }

// Set writes scalar values; a nil value under a key deletes it, matching
// store.Store.Set's contract.
func Set(kv map[string]any) Verb { return Verb{Kind: KindSet, KV: kv} }

// SetArray idempotently inserts values into array-valued keys.
func SetArray(kv map[string]any) Verb { return Verb{Kind: KindSetArray, KV: kv} }

// RemoveArray removes values from array-valued keys.
func RemoveArray(kv map[string]any) Verb { return Verb{Kind: KindRemoveArray, KV: kv} }

// Run executes cmd synchronously in the agent's shell.
func Run(cmd RunCommand) Verb { return Verb{Kind: KindRun, Run: cmd} }

// Launch executes cmd asynchronously; the agent responds true
// immediately and delivers the real result later.
func Launch(cmd RunCommand) Verb { return Verb{Kind: KindLaunch, Run: cmd} }

// Spawn executes cmd fire-and-forget; no result is ever delivered.
func Spawn(cmd RunCommand) Verb { return Verb{Kind: KindSpawn, Run: cmd} }

// Copy begins a two-phase file receipt.
func Copy(c CopyFile) Verb { return Verb{Kind: KindCopy, Copy: c} }

// Fetch stages a file on the agent for publication on the fetch topic.
func Fetch(source string) Verb { return Verb{Kind: KindFetch, Fetch: FetchFile{Source: source}} }

// Restart schedules a process exit with the given code after a short delay.
func Restart(code int) Verb { return Verb{Kind: KindRestart, ExitCode: code} }

// Chain sequentially executes sub-verbs on the agent in one round-trip.
func Chain(verbs ...Verb) Verb { return Verb{Kind: KindChain, Chain: verbs} }

// Group is the compound chain[get[addr,name], seta(groups,name)] used to
// add the responding agents to a named group; on the wire it is a chain,
// not a distinct verb kind.
func Group(name string) Verb {
	return Chain(Get("addr", "name"), SetArray(map[string]any{"groups": name}))
}

// Wait is a controller-local pipeline stage: its wire payload is JSON
// null. The agent treats it as a no-op that still responds ok; its real
// purpose is to tell the controller to extend the watchdog to the
// generous launch timeout before advancing to the next stage.
func Wait() Verb { return Verb{Kind: KindWait} }

// Invoke dispatches a plugin-defined custom verb.
func Invoke(name string, args ...string) Verb {
	return Verb{Kind: KindInvoke, InvokeName: name, InvokeArgs: args}
}

// IsWait reports whether v is the Wait stage marker.
func (v Verb) IsWait() bool { return v.Kind == KindWait }

// ------------------------------------------------------------------
// Wire codec
// ------------------------------------------------------------------

type invokePayload struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// MarshalJSON renders the single-key-object wire form, e.g.
// {"get":["addr","name"]}, {"run":{"cmd":"uptime"}}; Wait renders as the
// JSON literal null.
func (v Verb) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindWait, "":
		return []byte("null"), nil
	case KindGet:
		return json.Marshal(map[string][]string{"get": v.Keys})
	case KindSet:
		return json.Marshal(map[string]map[string]any{"set": v.KV})
	case KindSetArray:
		return json.Marshal(map[string]map[string]any{"seta": v.KV})
	case KindRemoveArray:
		return json.Marshal(map[string]map[string]any{"rma": v.KV})
	case KindRun:
		return json.Marshal(map[string]RunCommand{"run": v.Run})
	case KindLaunch:
		return json.Marshal(map[string]RunCommand{"launch": v.Run})
	case KindSpawn:
		return json.Marshal(map[string]RunCommand{"spawn": v.Run})
	case KindCopy:
		return json.Marshal(map[string]CopyFile{"cp": v.Copy})
	case KindFetch:
		return json.Marshal(map[string]FetchFile{"fetch": v.Fetch})
	case KindRestart:
		return json.Marshal(map[string]int{"restart": v.ExitCode})
	case KindChain:
		return json.Marshal(map[string][]Verb{"chain": v.Chain})
	case KindInvoke:
		return json.Marshal(map[string]invokePayload{
			"invoke": {Name: v.InvokeName, Args: v.InvokeArgs},
		})
	default:
		return nil, fmt.Errorf("verb: unknown kind %q", v.Kind)
	}
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (v *Verb) UnmarshalJSON(data []byte) error {
	trimmed := trimSpace(data)
	if string(trimmed) == "null" {
		*v = Wait()
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("verb: malformed envelope: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("verb: envelope must have exactly one key, got %d", len(raw))
	}

	for key, val := range raw {
		switch Kind(key) {
		case KindGet:
			var keys []string
			if err := json.Unmarshal(val, &keys); err != nil {
				return fmt.Errorf("verb: malformed get: %w", err)
			}
			*v = Get(keys...)
		case KindSet, KindSetArray, KindRemoveArray:
			var kv map[string]any
			if err := json.Unmarshal(val, &kv); err != nil {
				return fmt.Errorf("verb: malformed %s: %w", key, err)
			}
			*v = Verb{Kind: Kind(key), KV: kv}
		case KindRun, KindLaunch, KindSpawn:
			var cmd RunCommand
			if err := json.Unmarshal(val, &cmd); err != nil {
				return fmt.Errorf("verb: malformed %s: %w", key, err)
			}
			*v = Verb{Kind: Kind(key), Run: cmd}
		case KindCopy:
			var c CopyFile
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("verb: malformed cp: %w", err)
			}
			*v = Copy(c)
		case KindFetch:
			var f FetchFile
			if err := json.Unmarshal(val, &f); err != nil {
				return fmt.Errorf("verb: malformed fetch: %w", err)
			}
			*v = Verb{Kind: KindFetch, Fetch: f}
		case KindRestart:
			var code int
			if err := json.Unmarshal(val, &code); err != nil {
				return fmt.Errorf("verb: malformed restart: %w", err)
			}
			*v = Restart(code)
		case KindChain:
			var chain []Verb
			if err := json.Unmarshal(val, &chain); err != nil {
				return fmt.Errorf("verb: malformed chain: %w", err)
			}
			*v = Chain(chain...)
		case KindInvoke:
			var p invokePayload
			if err := json.Unmarshal(val, &p); err != nil {
				return fmt.Errorf("verb: malformed invoke: %w", err)
			}
			*v = Invoke(p.Name, p.Args...)
		default:
			return fmt.Errorf("verb: unknown verb kind %q", key)
		}
	}
	return nil
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
