package jenkins

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// paramClasses maps Jenkins parameter definition class names to the closed
// parameter type set. Unknown classes are unsupported and skipped.
var paramClasses = map[string]ParamType{
	"hudson.model.StringParameterDefinition":   ParamString,
	"hudson.model.TextParameterDefinition":     ParamText,
	"hudson.model.ChoiceParameterDefinition":   ParamChoice,
	"hudson.model.BooleanParameterDefinition":  ParamBoolean,
	"hudson.model.PasswordParameterDefinition": ParamPassword,
}

// resolveParamType accepts both fully-qualified class names and the short
// forms the JSON API reports in its "type" field.
func resolveParamType(className string) (ParamType, bool) {
	if t, ok := paramClasses[className]; ok {
		return t, true
	}
	switch className {
	case "StringParameterDefinition":
		return ParamString, true
	case "TextParameterDefinition":
		return ParamText, true
	case "ChoiceParameterDefinition":
		return ParamChoice, true
	case "BooleanParameterDefinition":
		return ParamBoolean, true
	case "PasswordParameterDefinition":
		return ParamPassword, true
	}
	return "", false
}

// GetJobParameters reads the job's parameter definitions. The primary
// source is config.xml (richer metadata: trim flags, credential hints); when
// that path is forbidden the JSON tree query serves as fallback.
func (c *Client) GetJobParameters(ctx context.Context, jobURL string) ([]JobParameter, error) {
	c.SetJobURL(jobURL)
	jobURL = c.JobURL()

	resp, err := c.getWithRefresh(ctx, jobURL+"/config.xml")
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusForbidden {
			return c.getJobParametersJSON(ctx, jobURL)
		}
		return nil, err
	}
	defer resp.Body.Close()

	xmlBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job definition: %w", err)
	}

	return ParseParametersXML(string(xmlBody))
}

// ParseParametersXML extracts parameter definitions from a job's config.xml.
func ParseParametersXML(xmlData string) ([]JobParameter, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	var (
		params        []JobParameter
		current       JobParameter
		currentClass  string
		insideChoices bool
		choices       []string
	)

	readText := func() string {
		var text strings.Builder
		for {
			tok, err := decoder.Token()
			if err != nil {
				return strings.TrimSpace(text.String())
			}
			switch t := tok.(type) {
			case xml.CharData:
				text.Write(t)
			case xml.EndElement:
				return strings.TrimSpace(text.String())
			}
		}
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse job definition: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if paramType, ok := paramClasses[name]; ok {
				current = JobParameter{Type: paramType}
				currentClass = name
				continue
			}
			if currentClass == "" {
				continue
			}
			switch name {
			case "name":
				current.Name = readText()
			case "description":
				current.Description = readText()
			case "defaultValue":
				current.DefaultValue = normalizeDefault(current.Type, readText())
			case "trim":
				current.Trim = readText() == "true"
			case "required":
				current.Required = readText() == "true"
			case "credentialType":
				current.CredentialType = readText()
			case "projectName":
				current.ProjectName = readText()
			case "filter":
				current.Filter = readText()
			case "choices":
				insideChoices = true
				choices = nil
			case "string":
				if insideChoices {
					choices = append(choices, readText())
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "choices":
				if insideChoices {
					insideChoices = false
					current.Choices = choices
				}
			case currentClass:
				if current.Type == ParamPassword && current.DefaultValue == "" {
					current.DefaultValue = UnsetPassword
				}
				params = append(params, current)
				current = JobParameter{}
				currentClass = ""
			}
		}
	}

	return params, nil
}

// paramsAPIResponse is the JSON fallback shape: parameter definitions live
// in job properties (and occasionally actions).
type paramsAPIResponse struct {
	Actions []struct {
		ParameterDefinitions []apiParamDefinition `json:"parameterDefinitions"`
	} `json:"actions"`
	Property []struct {
		Class                string               `json:"_class"`
		ParameterDefinitions []apiParamDefinition `json:"parameterDefinitions"`
	} `json:"property"`
}

type apiParamDefinition struct {
	Class                 string `json:"_class"`
	Type                  string `json:"type"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	DefaultParameterValue *struct {
		Value json.RawMessage `json:"value"`
	} `json:"defaultParameterValue"`
	Choices        []json.RawMessage `json:"choices"`
	Trim           bool              `json:"trim"`
	Required       bool              `json:"required"`
	CredentialType string            `json:"credentialType"`
	ProjectName    string            `json:"projectName"`
	Filter         string            `json:"filter"`
}

func (c *Client) getJobParametersJSON(ctx context.Context, jobURL string) ([]JobParameter, error) {
	rawURL := jobURL + "/api/json?tree=property[_class,parameterDefinitions[name,type,description,defaultParameterValue[value],choices,trim]]"

	var resp paramsAPIResponse
	if err := c.getJSON(ctx, rawURL, &resp); err != nil {
		return nil, err
	}

	return parseParametersJSON(resp), nil
}

func parseParametersJSON(resp paramsAPIResponse) []JobParameter {
	var params []JobParameter
	seen := make(map[string]bool)

	push := func(defs []apiParamDefinition) {
		for _, def := range defs {
			if def.Name == "" || seen[def.Name] {
				continue
			}

			paramType, ok := resolveParamType(def.Class)
			if !ok {
				paramType, ok = resolveParamType(def.Type)
			}
			if !ok {
				continue
			}
			seen[def.Name] = true

			param := JobParameter{
				Type:           paramType,
				Name:           def.Name,
				Description:    def.Description,
				Trim:           def.Trim,
				Required:       def.Required,
				CredentialType: def.CredentialType,
				ProjectName:    def.ProjectName,
				Filter:         def.Filter,
			}

			if def.DefaultParameterValue != nil {
				param.DefaultValue = rawToString(def.DefaultParameterValue.Value)
			}
			param.DefaultValue = normalizeDefault(paramType, param.DefaultValue)
			if paramType == ParamPassword && param.DefaultValue == "" {
				param.DefaultValue = UnsetPassword
			}

			for _, raw := range def.Choices {
				if s := rawToString(raw); s != "" || string(raw) == `""` {
					param.Choices = append(param.Choices, s)
				}
			}

			params = append(params, param)
		}
	}

	for _, action := range resp.Actions {
		push(action.ParameterDefinitions)
	}
	for _, prop := range resp.Property {
		if prop.Class == "" || prop.Class == "hudson.model.ParametersDefinitionProperty" {
			push(prop.ParameterDefinitions)
		}
	}

	return params
}

// normalizeDefault masks password defaults behind the unset sentinel so raw
// secrets never round-trip through display or history.
func normalizeDefault(t ParamType, value string) string {
	if t == ParamPassword {
		return UnsetPassword
	}
	return value
}

// rawToString renders a scalar JSON value as its parameter string form.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}

	return strings.TrimSpace(string(raw))
}
