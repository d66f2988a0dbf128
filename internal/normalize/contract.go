package normalize

import (
	"strings"

	"jobhunter/aggregator-service/internal/model"
)

// contractPatterns are checked in priority order; the narrower categories
// come first so "Praktikum (Teilzeit)" resolves to internship.
// Swiss postings often express workload as a percentage, so "80%" style
// markers classify part-time and "100%" full-time.
var contractPatterns = []struct {
	contract model.Contract
	keywords []string
}{
	{model.ContractApprenticeship, []string{"apprenticeship", "apprentissage", "lehre", "lehrstelle", "lehrling"}},
	{model.ContractInternship, []string{"internship", "praktikum", "stage", "stagiaire", "trainee"}},
	{model.ContractTemporary, []string{"temporary", "temp ", "temporär", "intérim", "interim"}},
	{model.ContractFixedTerm, []string{"contract", "freelance", "befristet", "cdd", "contrat à durée déterminée"}},
	{model.ContractPartTime, []string{"part-time", "part time", "teilzeit", "temps partiel", "50%", "60%", "70%", "80%", "90%"}},
	{model.ContractFullTime, []string{"full-time", "full time", "100%", "vollzeit", "temps plein", "festanstellung", "unbefristet", "cdi", "permanent"}},
}

// InferContract classifies the contract type from title and description.
// Returns "" when no marker is found.
func InferContract(title, description string) model.Contract {
	combined := strings.ToLower(title + " " + description)
	if strings.TrimSpace(combined) == "" {
		return ""
	}
	for _, p := range contractPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(combined, kw) {
				return p.contract
			}
		}
	}
	return ""
}
