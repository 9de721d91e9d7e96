package main

import (
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/lambda/upload-trigger/handler"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.Start(handler.UploadTriggerHandler)
}
