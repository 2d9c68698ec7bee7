package cmd

// #region imports
import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/provider"
)

// #endregion

// #region route-command

var (
	routeInputPath string
	routeGenerate  bool
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route one item and optionally generate it",
	Long: `Route one item described as JSON:

  {"content_id": "story-1",
   "context": {"locale": "fi", "country": "FI", "topic": "central_banking",
               "complexity": 0.8, "risk": 0.5, "source_reputation": 0.9},
   "sources": ["https://example.org/release"]}

With --generate the item is also sent to the provider and the outcome
is recorded against the learned state.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeInputPath, "input", "-", "item JSON file, or - for stdin")
	routeCmd.Flags().BoolVar(&routeGenerate, "generate", false, "call the provider and record the outcome")
}

type routeItem struct {
	ContentID string           `json:"content_id"`
	Context   feedback.Context `json:"context"`
	Sources   []string         `json:"sources,omitempty"`
}

type routeOutput struct {
	ContentID string                     `json:"content_id"`
	Decision  feedback.Decision          `json:"decision"`
	EventID   string                     `json:"event_id,omitempty"`
	Generated *provider.GenerateResponse `json:"generated,omitempty"`
}

func runRoute(cmd *cobra.Command, args []string) error {
	item, err := readItem(routeInputPath)
	if err != nil {
		return err
	}

	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	out := routeOutput{ContentID: item.ContentID}
	out.Decision = c.router.Route(item.Context)

	if routeGenerate {
		if err := generateAndRecord(cmd, c, item, &out); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func generateAndRecord(cmd *cobra.Command, c *components, item routeItem, out *routeOutput) error {
	client, err := provider.NewClient(c.cfg.Provider.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	template := ""
	if v, err := c.tuner.Base(out.Decision.Tier, item.Context.Locale); err == nil {
		template = v.Template
	}
	resp, err := client.Generate(cmd.Context(), &provider.GenerateRequest{
		ContentID:      item.ContentID,
		Tier:           string(out.Decision.Tier),
		Locale:         item.Context.Locale,
		PromptVariant:  out.Decision.VariantID,
		PromptTemplate: template,
		Sources:        item.Sources,
	})
	if err != nil {
		return err
	}
	out.Generated = resp

	// Editorial and engagement signals arrive later as addenda; the
	// initial outcome carries only what the provider reports.
	outcome := feedback.Outcome{
		SchemaOK: resp.Headline != "" && resp.Summary != "",
		Cost:     resp.Usage.Cost(),
	}
	out.EventID, err = c.router.RecordOutcome(item.ContentID, item.Context, out.Decision, outcome)
	return err
}

func readItem(path string) (routeItem, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return routeItem{}, fmt.Errorf("read item: %w", err)
	}

	var item routeItem
	if err := json.Unmarshal(data, &item); err != nil {
		return routeItem{}, fmt.Errorf("parse item: %w", err)
	}
	if item.ContentID == "" {
		return routeItem{}, fmt.Errorf("item needs a content_id")
	}
	return item, nil
}

// #endregion
