package library

import "time"

// Method identifies where an upload run sourced its samples.
type Method string

const (
	MethodFile Method = "file"
	MethodAPI  Method = "api"
)

// Record is written back after an upload run so operators can see what was published where.
type Record struct {
	Id         string    `dynamodbav:"id" json:"id"`
	Library    string    `dynamodbav:"library" json:"library"`
	Manifold   string    `dynamodbav:"manifold" json:"manifold"`
	Source     string    `dynamodbav:"source" json:"source"`
	Samples    int       `dynamodbav:"samples" json:"samples"`
	Images     int       `dynamodbav:"images" json:"images"`
	Updated    time.Time `dynamodbav:"updated" json:"updated"`
	Operator   string    `dynamodbav:"operator" json:"operator"`
	Method     Method    `dynamodbav:"method" json:"method"`
	ObjectPath string    `dynamodbav:"object_path" json:"object_path"`
}
