package notify

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/argus-soc/argus/pkg/models"
)

const maxBlockTextLength = 2900

func investigationURL(investigationID, dashboardURL string) string {
	return fmt.Sprintf("%s/investigations/%s", dashboardURL, investigationID)
}

// BuildApprovalMessage creates Block Kit blocks for an approval-gate request.
func BuildApprovalMessage(req *models.ApprovalRequest, inv *models.Investigation, dashboardURL string) []goslack.Block {
	header := fmt.Sprintf(":rotating_light: *Approval required* — %s", req.Reason)

	var detail strings.Builder
	fmt.Fprintf(&detail, "*Tenant:* %s\n", inv.TenantID)
	if inv.Alert != nil {
		fmt.Fprintf(&detail, "*Alert:* %s\n", inv.Alert.Title)
	}
	fmt.Fprintf(&detail, "*Classification:* %s (confidence %.2f, severity %s)\n",
		inv.Classification, inv.Confidence, inv.Severity)
	fmt.Fprintf(&detail, "*Deadline:* %s\n", req.Deadline.UTC().Format("2006-01-02 15:04 UTC"))
	if len(req.Actions) > 0 {
		detail.WriteString("*Pending actions:*\n")
		for _, a := range req.Actions {
			fmt.Fprintf(&detail, "• `%s` → `%s` (tier %d)\n", a.Action, a.Target, a.Tier)
		}
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(detail.String()), false, false),
			nil, nil,
		),
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "Review Investigation", false, false))
	btn.URL = investigationURL(req.InvestigationID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))
	return blocks
}

// BuildActionMessage creates Block Kit blocks for a Tier-1 execute-and-notify
// record.
func BuildActionMessage(inv *models.Investigation, action models.RecommendedAction, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":shield: *Automated action executed* — `%s` on `%s`\n*Tenant:* %s · *Classification:* %s (%.2f)",
		action.Action, action.Target, inv.TenantID, inv.Classification, inv.Confidence)
	if action.Rationale != "" {
		text += "\n*Rationale:* " + action.Rationale
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(text), false, false),
			nil, nil,
		),
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Investigation", false, false))
	btn.URL = investigationURL(inv.ID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))
	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full detail in dashboard)_"
}
