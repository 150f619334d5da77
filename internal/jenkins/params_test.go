package jenkins

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"testing"
)

const paramsConfigXML = `<?xml version="1.0" encoding="UTF-8"?>
<project>
  <properties>
    <hudson.model.ParametersDefinitionProperty>
      <parameterDefinitions>
        <hudson.model.StringParameterDefinition>
          <name>BRANCH</name>
          <description>git branch</description>
          <defaultValue>main</defaultValue>
          <trim>true</trim>
        </hudson.model.StringParameterDefinition>
        <hudson.model.ChoiceParameterDefinition>
          <name>ENV</name>
          <choices class="java.util.Arrays$ArrayList">
            <a class="string-array">
              <string>staging</string>
              <string>production</string>
              <string/>
            </a>
          </choices>
        </hudson.model.ChoiceParameterDefinition>
        <hudson.model.BooleanParameterDefinition>
          <name>SKIP_TESTS</name>
          <defaultValue>false</defaultValue>
        </hudson.model.BooleanParameterDefinition>
        <hudson.model.PasswordParameterDefinition>
          <name>DEPLOY_KEY</name>
          <defaultValue>{AQAAABAAAAAQ}</defaultValue>
        </hudson.model.PasswordParameterDefinition>
        <hudson.model.TextParameterDefinition>
          <name>NOTES</name>
          <defaultValue></defaultValue>
        </hudson.model.TextParameterDefinition>
      </parameterDefinitions>
    </hudson.model.ParametersDefinitionProperty>
  </properties>
</project>`

func TestParseParametersXML(t *testing.T) {
	params, err := ParseParametersXML(paramsConfigXML)
	if err != nil {
		t.Fatalf("ParseParametersXML() error = %v", err)
	}
	if len(params) != 5 {
		t.Fatalf("parsed %d parameters, want 5", len(params))
	}

	branch := params[0]
	if branch.Type != ParamString || branch.Name != "BRANCH" {
		t.Errorf("params[0] = %+v", branch)
	}
	if branch.DefaultValue != "main" || !branch.Trim {
		t.Errorf("BRANCH default/trim = %q/%v", branch.DefaultValue, branch.Trim)
	}
	if branch.Description != "git branch" {
		t.Errorf("BRANCH description = %q", branch.Description)
	}

	env := params[1]
	if env.Type != ParamChoice {
		t.Errorf("ENV type = %v", env.Type)
	}
	wantChoices := []string{"staging", "production", ""}
	if !reflect.DeepEqual(env.Choices, wantChoices) {
		t.Errorf("ENV choices = %v, want %v", env.Choices, wantChoices)
	}

	if params[2].Type != ParamBoolean || params[2].DefaultValue != "false" {
		t.Errorf("params[2] = %+v", params[2])
	}

	key := params[3]
	if key.Type != ParamPassword {
		t.Errorf("DEPLOY_KEY type = %v", key.Type)
	}
	if key.DefaultValue != UnsetPassword {
		t.Errorf("DEPLOY_KEY default = %q, want the unset sentinel", key.DefaultValue)
	}

	if params[4].Type != ParamText || params[4].Name != "NOTES" {
		t.Errorf("params[4] = %+v", params[4])
	}
}

func TestParseParametersXMLIgnoresUnknownDefinitions(t *testing.T) {
	xmlData := `<project>
      <parameterDefinitions>
        <com.example.CustomParameterDefinition>
          <name>IGNORED</name>
        </com.example.CustomParameterDefinition>
        <hudson.model.StringParameterDefinition>
          <name>KEPT</name>
          <defaultValue>v</defaultValue>
        </hudson.model.StringParameterDefinition>
      </parameterDefinitions>
    </project>`

	params, err := ParseParametersXML(xmlData)
	if err != nil {
		t.Fatalf("ParseParametersXML() error = %v", err)
	}
	if len(params) != 1 || params[0].Name != "KEPT" {
		t.Errorf("params = %+v, want only KEPT", params)
	}
}

func TestParseParametersJSON(t *testing.T) {
	payload := `{
		"property": [{
			"_class": "hudson.model.ParametersDefinitionProperty",
			"parameterDefinitions": [
				{"_class": "hudson.model.StringParameterDefinition", "name": "BRANCH",
				 "defaultParameterValue": {"value": "main"}},
				{"type": "ChoiceParameterDefinition", "name": "ENV",
				 "choices": ["staging", "production"]},
				{"_class": "hudson.model.BooleanParameterDefinition", "name": "FLAG",
				 "defaultParameterValue": {"value": true}},
				{"_class": "hudson.model.StringParameterDefinition", "name": "BRANCH"},
				{"_class": "com.example.RunParameterDefinition", "name": "RUN"}
			]
		}]
	}`

	var resp paramsAPIResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	params := parseParametersJSON(resp)
	if len(params) != 3 {
		t.Fatalf("parsed %d parameters, want 3: %+v", len(params), params)
	}
	if params[0].Name != "BRANCH" || params[0].DefaultValue != "main" {
		t.Errorf("params[0] = %+v", params[0])
	}
	if params[1].Type != ParamChoice || len(params[1].Choices) != 2 {
		t.Errorf("params[1] = %+v", params[1])
	}
	if params[2].Type != ParamBoolean || params[2].DefaultValue != "true" {
		t.Errorf("params[2] = %+v", params[2])
	}
}

func TestGetJobParametersFallsBackToJSONOn403(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/job/app/config.xml":
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Path == "/job/app/api/json":
			w.Write([]byte(`{
				"property": [{
					"_class": "hudson.model.ParametersDefinitionProperty",
					"parameterDefinitions": [{
						"_class": "hudson.model.StringParameterDefinition",
						"name": "BRANCH",
						"defaultParameterValue": {"value": "main"}
					}]
				}]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))

	params, err := client.GetJobParameters(context.Background(), srv.URL+"/job/app")
	if err != nil {
		t.Fatalf("GetJobParameters() error = %v", err)
	}
	if len(params) != 1 || params[0].Name != "BRANCH" || params[0].DefaultValue != "main" {
		t.Errorf("params = %+v", params)
	}
}

func TestGetJobParametersFromConfigXML(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/job/app/config.xml" {
			w.Write([]byte(paramsConfigXML))
			return
		}
		http.NotFound(w, r)
	}))

	params, err := client.GetJobParameters(context.Background(), srv.URL+"/job/app")
	if err != nil {
		t.Fatalf("GetJobParameters() error = %v", err)
	}
	if len(params) != 5 {
		t.Errorf("parsed %d parameters, want 5", len(params))
	}
}
