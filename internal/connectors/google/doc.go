// Package google provides shared infrastructure for the Google API
// Sources.
//
// The googledrive and gmail Sources use this package to create
// authenticated API clients from an OAuth access token, to pace their
// requests and to translate API errors into scanner errors:
//
//	svc, err := drive.NewService(ctx, google.ClientOptions(token, opts)...)
//	list, err := google.Call(ctx, caller, func(ctx context.Context) (*drive.FileList, error) {
//		return svc.Files.List().Context(ctx).Do()
//	})
//
// # OAuth2 Scopes
//
// The access tokens need these scopes:
//   - https://www.googleapis.com/auth/gmail.readonly (restricted)
//   - https://www.googleapis.com/auth/drive.readonly (restricted)
package google
