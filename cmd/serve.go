package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/lenstree/internal/control"
	"github.com/agentic-research/lenstree/internal/session"
)

const instructions = `lenstree exposes configuration files as one tree. Files live under
/files, e.g. /files/etc/hosts/1/ipaddr. Edits stay in memory until the
save tool writes them back; /augeas/files/<path>/error explains files
that failed to load or save.`

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			return server.ServeStdio(newMCPServer(e.sess, e.ctl))
		},
	}
}

// toolset serializes tool calls onto one session. With a controller it
// reloads the tree before a read when another process has saved and this
// session holds no unsaved edits.
type toolset struct {
	mu      sync.Mutex
	sess    *session.Session
	ctl     *control.Controller
	gen     uint64
	mutated bool
}

func newToolset(sess *session.Session, ctl *control.Controller) *toolset {
	ts := &toolset{sess: sess, ctl: ctl}
	if ctl != nil {
		ts.gen = ctl.Generation()
	}
	return ts
}

// refresh must be called with mu held.
func (ts *toolset) refresh(ctx context.Context) error {
	if ts.ctl == nil || ts.mutated {
		return nil
	}
	gen := ts.ctl.Generation()
	if gen == ts.gen {
		return nil
	}
	if err := ts.sess.Load(ctx); err != nil {
		return err
	}
	ts.gen = gen
	return nil
}

func newMCPServer(sess *session.Session, ctl *control.Controller) *server.MCPServer {
	s := server.NewMCPServer(
		"lenstree",
		session.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	ts := newToolset(sess, ctl)
	for _, t := range ts.tools() {
		s.AddTool(t.def, t.handle)
	}
	return s
}

type tool struct {
	def    mcp.Tool
	handle server.ToolHandlerFunc
}

func (ts *toolset) tools() []tool {
	expr := mcp.WithString("expr", mcp.Required(), mcp.Description("Path expression"))
	return []tool{
		{mcp.NewTool("match",
			mcp.WithDescription("List the paths an expression selects"),
			expr), ts.match},
		{mcp.NewTool("get",
			mcp.WithDescription("Return the value of the single node an expression selects, (none) when it has no value"),
			expr), ts.get},
		{mcp.NewTool("set",
			mcp.WithDescription("Set the value of a node, creating it when missing"),
			expr,
			mcp.WithString("value", mcp.Required(), mcp.Description("New value"))), ts.set},
		{mcp.NewTool("rm",
			mcp.WithDescription("Delete every node an expression selects"),
			expr), ts.rm},
		{mcp.NewTool("print",
			mcp.WithDescription("Print subtrees as path = value lines"),
			mcp.WithString("expr", mcp.Description("Path expression, default every top-level node"))), ts.print},
		{mcp.NewTool("save",
			mcp.WithDescription("Write every changed file back to disk")), ts.save},
	}
}

func (ts *toolset) match(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := ts.sess.Match(expr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (ts *toolset) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, found, err := ts.sess.Get(expr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("%s matches no node", expr)), nil
	}
	if v == nil {
		return mcp.NewToolResultText("(none)"), nil
	}
	return mcp.NewToolResultText(*v), nil
}

func (ts *toolset) set(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.sess.Set(expr, value); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mutated = true
	return mcp.NewToolResultText("ok"), nil
}

func (ts *toolset) rm(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n, err := ts.sess.Remove(expr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts.mutated = true
	return mcp.NewToolResultText(fmt.Sprintf("removed %d nodes", n)), nil
}

func (ts *toolset) print(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := req.GetString("expr", "")
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := ts.sess.Print(&buf, expr); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (ts *toolset) save(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	rep, err := saveLocked(ctx, ts.sess, ts.ctl)
	var b strings.Builder
	if rep != nil {
		for _, o := range rep.Outcomes {
			fmt.Fprintf(&b, "%s: %s", o.File, o.State)
			if o.Err != nil {
				fmt.Fprintf(&b, " (%s: %v)", o.Kind, o.Err)
			}
			b.WriteByte('\n')
		}
	}
	if err != nil {
		b.WriteString(err.Error())
		return mcp.NewToolResultError(b.String()), nil
	}
	ts.mutated = false
	if ts.ctl != nil {
		ts.gen = ts.ctl.Generation()
	}
	if b.Len() == 0 {
		b.WriteString("nothing to save")
	}
	return mcp.NewToolResultText(b.String()), nil
}
