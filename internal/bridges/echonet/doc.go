// Package echonet implements the subset of ECHONET Lite the bridge needs:
// format-1 frames over UDP, node discovery and single-property Get and SetC
// against home air conditioner objects (class 0x0130).
//
// Discovery multicasts a Get of the node profile instance list (EPC 0xD6)
// to 224.0.23.0:3610. Each node that answers, or that later announces its
// instances with an INF of EPC 0xD5, is handed to the discovery callback
// together with the objects it lists.
//
// Property values are returned as a closed set of types implementing Value:
//
//	v, err := client.GetPropertyValue(ctx, "10.0.0.5", eoj, echonet.EPCOperationMode)
//	if mode, ok := v.(echonet.OperationMode); ok {
//	    // mode.Index: 0 other, 1 auto, 2 cool, 3 heat, 4 dry, 5 fan_only
//	}
//
//	err = client.SetPropertyValue(ctx, "10.0.0.5", eoj, echonet.Power(true))
//
// A device answering with an SNA service code yields ErrRequestRejected.
package echonet
