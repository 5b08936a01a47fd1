package workflow

import "github.com/cordum/stageflow/core/infra/secrets"

// parameterValues collects pointers to every parameter value in c.
func (c *WorkflowConfig) parameterValues() []*string {
	var out []*string
	add := func(params []ConfigParameter) {
		for i := range params {
			out = append(out, &params[i].Value)
		}
	}
	add(c.Parameters)
	for si := range c.Stages {
		for ji := range c.Stages[si].SubStages {
			sub := &c.Stages[si].SubStages[ji]
			add(sub.Parameters)
			if sub.UploadConfig != nil {
				add(sub.UploadConfig.Parameters)
			}
			if sub.DownloadConfig != nil {
				add(sub.DownloadConfig.Parameters)
			}
		}
	}
	return out
}

// SecretRefs counts parameter values holding secret references.
func (c *WorkflowConfig) SecretRefs() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, v := range c.parameterValues() {
		if secrets.IsRef(*v) {
			n++
		}
	}
	return n
}

// Redacted returns a copy of c with secret references masked.
func (c *WorkflowConfig) Redacted() *WorkflowConfig {
	out := c.Clone()
	if out == nil {
		return nil
	}
	secrets.RedactValues(out.parameterValues())
	return out
}
