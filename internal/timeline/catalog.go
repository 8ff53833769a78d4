package timeline

import "github.com/incuhub/roadmap-sync/internal/models"

// DefaultCatalog returns the built-in nine-stage catalog used whenever the
// platform catalog endpoint is unreachable. Names must match the backend's
// catalog exactly; they are the join key for stage classification.
func DefaultCatalog() []models.StageDefinition {
	return []models.StageDefinition{
		{
			Name:            "Idea Submission",
			MessageForOwner: "Submit your idea with a clear problem statement and target market.",
		},
		{
			Name:            "Initial Evaluation",
			MessageForOwner: "The committee is reviewing your submission. Keep your contact details current.",
		},
		{
			Name:            "Systematic Planning / Business Plan Preparation",
			MessageForOwner: "Complete your business model canvas and prepare the full business plan.",
		},
		{
			Name:            "Advanced Evaluation Before Funding",
			MessageForOwner: "The committee performs an in-depth review of your plan before any funding decision.",
		},
		{
			Name:            "Funding",
			MessageForOwner: "Funding terms are being arranged. Review your wallet for disbursements.",
		},
		{
			Name:            "Execution and Development",
			MessageForOwner: "Build your product and report progress at the scheduled follow-up meetings.",
		},
		{
			Name:            "Launch",
			MessageForOwner: "Prepare your go-to-market plan and coordinate the launch with your committee liaison.",
		},
		{
			Name:            "Post-Launch Follow-up",
			MessageForOwner: "Share launch metrics with the committee and address follow-up actions.",
		},
		{
			Name:            "Project Stabilization / Platform Separation",
			MessageForOwner: "Stabilize operations and complete the separation checklist to graduate from the platform.",
		},
	}
}
