package catalog

// SampleApplicationID names the built-in demo application.
const SampleApplicationID = "finance-close"

// Sample returns the built-in template set used when no catalog is configured.
func Sample() *Catalog {
	return MustNew(SampleDocument())
}

func SampleDocument() Document {
	accuracy := AttestationTemplate{
		ID:         "att-accuracy",
		Name:       "Accuracy",
		Text:       "I confirm the figures provided are complete and accurate.",
		IsRequired: true,
	}
	review := AttestationTemplate{
		ID:         "att-review",
		Name:       "Independent Review",
		Text:       "I confirm I did not prepare the items I am reviewing.",
		IsRequired: true,
	}
	controls := AttestationTemplate{
		ID:   "att-controls",
		Name: "Control Evidence",
		Text: "Supporting control evidence has been retained.",
	}
	threshold := ParameterTemplate{ID: "param-threshold", Name: "Variance Threshold", DataType: "number", IsRequired: true, DefaultValue: "5"}
	owner := ParameterTemplate{ID: "param-owner", Name: "Task Owner", DataType: "string"}
	cutoff := ParameterTemplate{ID: "param-cutoff", Name: "Cut-off Date", DataType: "date"}

	return Document{
		Application: Application{
			ID:          SampleApplicationID,
			Name:        "Finance Close",
			Description: "Month-end close workflow templates",
			Parameters: []ParameterTemplate{
				{ID: "reportingDate", Name: "Reporting Date", DataType: "date", IsRequired: true},
				{ID: "entity", Name: "Legal Entity", DataType: "string", IsRequired: true},
				{ID: "autoNotify", Name: "Notify Owners", DataType: "boolean", DefaultValue: "true"},
			},
		},
		Attestations: []AttestationTemplate{accuracy, review, controls},
		Parameters:   []ParameterTemplate{threshold, owner, cutoff},
		Stages: []StageTemplate{
			{
				ID:          "data-collection",
				Name:        "Data Collection",
				Description: "Gather ledger extracts and manual adjustments",
				Order:       1,
				IsActive:    true,
				SubStages: []SubStageTemplate{
					{
						ID:               "extract-ledger",
						Name:             "Extract Ledger",
						Type:             SubStageAuto,
						Order:            1,
						IsAuto:           true,
						IsActive:         true,
						RequiresDownload: true,
						ExpectedDuration: "1h",
						Parameters:       []ParameterTemplate{cutoff},
						DownloadConfig: &FileTemplate{
							AllowedExtensions:    []string{".xlsx", ".csv"},
							FileNamingConvention: "ledger_{entity}_{reportingDate}",
							Description:          "Trial balance extract",
						},
					},
					{
						ID:                  "upload-adjustments",
						Name:                "Upload Adjustments",
						Type:                SubStageManual,
						Order:               2,
						IsActive:            true,
						RequiresUpload:      true,
						RequiresAttestation: true,
						ExpectedDuration:    "4h",
						Parameters:          []ParameterTemplate{owner},
						AttestationTemplates: []AttestationTemplate{accuracy},
						EmailTemplates: []EmailTemplate{{
							ID:      "email-adjustments-due",
							Name:    "Adjustments Due",
							Subject: "Adjustments due for {entity}",
							Body:    "Please upload manual adjustments before the cut-off.",
						}},
						UploadConfig: &FileTemplate{
							AllowedExtensions:  []string{".xlsx"},
							MaxFileSize:        10,
							RequireValidation:  true,
							EmailNotifications: true,
							AllowMultiple:      true,
							Description:        "Manual journal adjustments",
						},
					},
				},
			},
			{
				ID:          "review",
				Name:        "Review",
				Description: "Variance analysis and reconciliation",
				Order:       2,
				IsActive:    true,
				SubStages: []SubStageTemplate{
					{
						ID:                   "variance-review",
						Name:                 "Variance Review",
						Type:                 SubStageManual,
						Order:                1,
						IsActive:             true,
						RequiresApproval:     true,
						RequiresAttestation:  true,
						ExpectedDuration:     "1d",
						Parameters:           []ParameterTemplate{threshold},
						AttestationTemplates: []AttestationTemplate{review},
					},
					{
						ID:        "reconciliation",
						Name:      "Reconciliation",
						Type:      SubStageAuto,
						Order:     2,
						IsAuto:    true,
						IsAlteryx: true,
						IsActive:  true,
					},
				},
			},
			{
				ID:          "sign-off",
				Name:        "Sign-off",
				Description: "Controller approval",
				Order:       3,
				IsActive:    true,
				SubStages: []SubStageTemplate{
					{
						ID:                   "controller-signoff",
						Name:                 "Controller Sign-off",
						Type:                 SubStageManual,
						Order:                1,
						IsActive:             true,
						RequiresApproval:     true,
						RequiresAttestation:  true,
						AttestationTemplates: []AttestationTemplate{accuracy, controls},
					},
					{
						ID:       "adhoc-followup",
						Name:     "Ad-hoc Follow-up",
						Type:     SubStageManual,
						Order:    2,
						IsAdhoc:  true,
						IsActive: true,
					},
				},
			},
		},
	}
}
